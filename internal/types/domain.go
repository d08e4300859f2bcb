package types

import (
	"fmt"
	"regexp"
	"strings"
)

// ArtifactContentType is the raster format used for every rendered certificate.
const ArtifactContentType = "image/png"

// eventIDPattern restricts event identifiers to names that are safe as a
// file stem or object key segment.
var eventIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidEventID reports whether id may select a roster and template. The empty
// id (global roster, default template) is valid.
func ValidEventID(id string) bool {
	return id == "" || (eventIDPattern.MatchString(id) && !strings.Contains(id, ".."))
}

// IssuanceRequest is constructed per inbound call and discarded once the
// workflow completes. Event selects both the roster and the template; empty
// means the global roster and the default template.
type IssuanceRequest struct {
	CallerName string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,max=320"`
	Event      string `json:"event,omitempty" validate:"omitempty,event_id"`
}

// Artifact is one rendered certificate. DisplayName is the text drawn on the
// image and the stem of every suggested filename.
type Artifact struct {
	DisplayName string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Filename is the attachment/local file name: "<DisplayName>.png".
func (a *Artifact) Filename() string {
	return a.DisplayName + ".png"
}

// DownloadFilename is the name suggested to interactive callers via
// Content-Disposition: "<DisplayName>-Certificate.png".
func (a *Artifact) DownloadFilename() string {
	return a.DisplayName + "-Certificate.png"
}

// ContentDisposition renders the attachment header value for HTTP responses.
// Quotes and backslashes in the name are escaped.
func (a *Artifact) ContentDisposition() string {
	name := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a.DownloadFilename())
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}

// IssuanceState tracks a single request through the issuance workflow.
type IssuanceState string

const (
	StateReceived       IssuanceState = "received"
	StateValidated      IssuanceState = "validated"
	StateResolved       IssuanceState = "resolved"
	StateRendered       IssuanceState = "rendered"
	StateDelivered      IssuanceState = "delivered"
	StateRejected       IssuanceState = "rejected"
	StateFailed         IssuanceState = "failed"
	StateDeliveryFailed IssuanceState = "delivery_failed"
)

// Terminal reports whether no further transition is possible from s.
func (s IssuanceState) Terminal() bool {
	switch s {
	case StateDelivered, StateRejected, StateFailed, StateDeliveryFailed:
		return true
	default:
		return false
	}
}

// DeliveryMode names how a rendered artifact leaves the workflow.
type DeliveryMode string

const (
	// DeliveryStream returns the artifact to the interactive caller.
	DeliveryStream DeliveryMode = "stream"
	// DeliveryEmail attaches the artifact to an outbound message.
	DeliveryEmail DeliveryMode = "email"
	// DeliveryLocal writes the artifact to disk as <DisplayName>.png.
	DeliveryLocal DeliveryMode = "local"
	// DeliveryNone renders without dispatching (batch dry runs).
	DeliveryNone DeliveryMode = "none"
)

// ParseDeliveryMode accepts the CLI spellings of each batch mode.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "l", "generate locally":
		return DeliveryLocal, nil
	case "email", "e", "generate and send email automatically":
		return DeliveryEmail, nil
	case "none", "dry-run":
		return DeliveryNone, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q (want local or email)", s)
	}
}
