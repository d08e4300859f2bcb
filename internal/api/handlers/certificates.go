// Package handlers contains the HTTP handlers mounted on the core chassis.
package handlers

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"certgen/internal/core"
	"certgen/internal/types"
)

// Issuer is the contract the certificate handler needs from the issuance
// service.
type Issuer interface {
	Issue(ctx context.Context, req types.IssuanceRequest) (*types.Artifact, error)
}

// CertificateHandler serves interactive certificate requests.
type CertificateHandler struct {
	issuer    Issuer
	validator *core.Validator
	logger    *slog.Logger
}

// NewCertificateHandler creates a CertificateHandler.
func NewCertificateHandler(issuer Issuer, val *core.Validator, logger *slog.Logger) *CertificateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateHandler{
		issuer:    issuer,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts POST /generate and its versioned alias. Any other
// verb on these paths gets the chassis 405 handler.
func (h *CertificateHandler) RegisterRoutes(r chi.Router) {
	r.Post("/generate", h.HandleGenerate)
	r.Post("/v1/certificates", h.HandleGenerate)
}

// HandleGenerate verifies the caller against the roster and streams back the
// rendered PNG as an attachment.
//
// The body is either a JSON object or a form (urlencoded or multipart) with
// fields name, email and optional event.
func (h *CertificateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeIssuanceRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if h.validator != nil {
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	art, err := h.issuer.Issue(r.Context(), req)
	if err != nil {
		h.logger.InfoContext(r.Context(), "certificate not issued",
			"code", types.CodeOf(err),
			"event", req.Event,
			"request_id", types.GetRequestID(r.Context()),
		)
		core.Error(w, r, err)
		return
	}

	core.Binary(w, http.StatusOK, art.ContentType, art.ContentDisposition(), art.Data)
}

// decodeIssuanceRequest picks the decoder from Content-Type. Form types and a
// missing Content-Type are read as a form, matching plain HTML form posts.
// Everything else is read as JSON, unknown keys ignored.
func decodeIssuanceRequest(w http.ResponseWriter, r *http.Request) (types.IssuanceRequest, error) {
	var req types.IssuanceRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "", "application/x-www-form-urlencoded", "multipart/form-data":
		if err := parseForm(r, mediaType); err != nil {
			return req, types.NewAppError(types.ErrCodeValidationInvalidInput, "malformed form body", err)
		}
		req.CallerName = r.PostFormValue("name")
		req.Email = r.PostFormValue("email")
		req.Event = r.PostFormValue("event")
	default:
		// fetch() without headers sends text/plain.
		if err := core.DecodeJSONLenient(w, r, &req); err != nil {
			return req, err
		}
	}

	return trimRequest(req), nil
}

// maxMultipartMemory bounds in-memory multipart parsing; the body limit
// middleware caps the total anyway.
const maxMultipartMemory = 1 << 16

func parseForm(r *http.Request, mediaType string) error {
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxMultipartMemory)
	}
	return r.ParseForm()
}

// trimRequest strips whitespace from name and event. Email is left as sent
// since roster matching is exact.
func trimRequest(req types.IssuanceRequest) types.IssuanceRequest {
	req.CallerName = strings.TrimSpace(req.CallerName)
	req.Event = strings.TrimSpace(req.Event)
	return req
}
