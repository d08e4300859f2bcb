package types

// SenderIdentity is the From header of outbound mail.
type SenderIdentity struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Attachment is a file carried by an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendInput is a fully rendered outbound message. Providers transmit it as
// is; no server-side templating is involved.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyText    string
	Attachments []Attachment
	// ReferenceID correlates provider callbacks with a batch result.
	ReferenceID string
}
