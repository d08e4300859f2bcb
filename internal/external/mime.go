package external

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"certgen/internal/types"
)

// buildMessage assembles a multipart MIME message from input. The returned
// message ID is the Message-ID header value without angle brackets.
func buildMessage(input types.SendInput) (*mail.Msg, string, error) {
	msg := mail.NewMsg()

	if input.From.Name != "" {
		if err := msg.FromFormat(input.From.Name, input.From.Address); err != nil {
			return nil, "", types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid sender address", err)
		}
	} else if err := msg.From(input.From.Address); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid sender address", err)
	}

	if err := msg.To(input.To); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("invalid recipient address %q", input.To), err)
	}

	msg.Subject(input.Subject)
	msg.SetBodyString(mail.TypeTextPlain, input.BodyText)

	for _, att := range input.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = types.ArtifactContentType
		}
		if err := msg.AttachReader(att.Filename, bytes.NewReader(att.Data),
			mail.WithFileContentType(mail.ContentType(contentType))); err != nil {
			return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("failed to attach %s", att.Filename), err)
		}
	}

	msgID := input.ReferenceID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	msg.SetMessageIDWithValue(msgID + "@certgen")

	return msg, msgID + "@certgen", nil
}

// renderMessage serializes input to RFC 5322 bytes.
func renderMessage(input types.SendInput) ([]byte, string, error) {
	msg, msgID, err := buildMessage(input)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize message", err)
	}
	return buf.Bytes(), msgID, nil
}
