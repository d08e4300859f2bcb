package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgen/internal/core"
	"certgen/internal/types"
)

type mockIssuer struct {
	got types.IssuanceRequest
	art *types.Artifact
	err error
}

func (m *mockIssuer) Issue(_ context.Context, req types.IssuanceRequest) (*types.Artifact, error) {
	m.got = req
	return m.art, m.err
}

func newTestRouter(issuer Issuer) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	h := NewCertificateHandler(issuer, core.NewValidator(logger), logger)
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		core.MethodNotAllowed(w, r, http.MethodPost)
	})
	h.RegisterRoutes(r)
	return r
}

func pngArtifact() *types.Artifact {
	return &types.Artifact{
		DisplayName: "Ada Lovelace",
		ContentType: types.ArtifactContentType,
		Data:        []byte("\x89PNG fake"),
		Width:       10,
		Height:      10,
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestHandleGenerate_FormSuccess(t *testing.T) {
	issuer := &mockIssuer{art: pngArtifact()}
	form := url.Values{"name": {"  ada lovelace "}, "email": {"ada@example.com"}, "event": {"workshop-2024"}}

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newTestRouter(issuer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Ada Lovelace-Certificate.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "\x89PNG fake", rec.Body.String())
	assert.Equal(t, types.IssuanceRequest{CallerName: "ada lovelace", Email: "ada@example.com", Event: "workshop-2024"}, issuer.got)
}

func TestHandleGenerate_JSONSuccess(t *testing.T) {
	issuer := &mockIssuer{art: pngArtifact()}

	req := httptest.NewRequest(http.MethodPost, "/v1/certificates",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	newTestRouter(issuer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", issuer.got.Email)
	assert.Empty(t, issuer.got.Event)
}

func TestHandleGenerate_MultipartForm(t *testing.T) {
	issuer := &mockIssuer{art: pngArtifact()}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Ada"))
	require.NoError(t, mw.WriteField("email", "ada@example.com"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestRouter(issuer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", issuer.got.CallerName)
}

func TestHandleGenerate_EmailNotTrimmed(t *testing.T) {
	issuer := &mockIssuer{art: pngArtifact()}
	form := url.Values{"name": {"Ada"}, "email": {" ada@example.com"}}

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	newTestRouter(issuer).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, " ada@example.com", issuer.got.Email)
}

func TestHandleGenerate_JSONUnderOtherContentTypes(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"text/plain", "text/plain;charset=UTF-8", `{"name":"Ada","email":"ada@example.com"}`},
		{"extra submit field", "application/json", `{"name":"Ada","email":"ada@example.com","submit":"Generate"}`},
		{"vendor json", "application/vnd.certgen+json", `{"name":"Ada","email":"ada@example.com"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &mockIssuer{art: pngArtifact()}
			req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			newTestRouter(issuer).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "Ada", issuer.got.CallerName)
			assert.Equal(t, "ada@example.com", issuer.got.Email)
		})
	}
}

func TestHandleGenerate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want types.ErrorCode
	}{
		{"missing email", `{"name":"Ada"}`, types.ErrCodeValidationMissingField},
		{"missing name", `{"email":"ada@example.com"}`, types.ErrCodeValidationMissingField},
		{"bad event", `{"name":"Ada","email":"ada@example.com","event":"../x"}`, types.ErrCodeValidationInvalidEvent},
		{"malformed json", `{"name":"Ada","email":`, "validation_invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &mockIssuer{art: pngArtifact()}
			req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			newTestRouter(issuer).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.want), errorCode(t, rec))
			assert.Empty(t, issuer.got.Email, "issuer must not be called")
		})
	}
}

func TestHandleGenerate_IssuerErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not on roster", types.NewAppError(types.ErrCodeValidationRejected, "email is not on the roster", nil), http.StatusBadRequest},
		{"roster missing", types.NewAppError(types.ErrCodeRosterNotFound, "roster not found", nil), http.StatusInternalServerError},
		{"template missing", types.NewAppError(types.ErrCodeTemplateNotFound, "template not found", nil), http.StatusInternalServerError},
		{"render failure", types.NewAppError(types.ErrCodeRenderFailure, "render failed", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"name": {"Ada"}, "email": {"ada@example.com"}}
			req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			newTestRouter(&mockIssuer{err: tt.err}).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(types.CodeOf(tt.err)), errorCode(t, rec))
		})
	}
}

func TestHandleGenerate_NonPOSTIs405(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		newTestRouter(&mockIssuer{}).ServeHTTP(rec, httptest.NewRequest(method, "/generate", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, string(types.ErrCodeMethodNotAllowed), errorCode(t, rec))
	}
}
