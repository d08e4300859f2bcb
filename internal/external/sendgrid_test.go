package external

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"certgen/internal/types"
)

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid",
		NoRetryPolicy(),
		"certgen-test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: serverURL,
	})
}

func certificateInput() types.SendInput {
	return types.SendInput{
		To: "ada@example.com",
		From: types.SenderIdentity{
			Name:    "Certificates",
			Address: "certs@example.org",
		},
		Subject:  "Your certificate",
		BodyText: "Hello Ada Lovelace,\n\nThanks for attending.",
		Attachments: []types.Attachment{{
			Filename:    "Ada Lovelace.png",
			ContentType: "image/png",
			Data:        []byte("\x89PNG fake"),
		}},
		ReferenceID: "run-1-0001",
	}
}

func TestSendGridSend_Success(t *testing.T) {
	var received sendGridMailPayload
	var receivedAuth, receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("expected path /v3/mail/send, got %s", r.URL.Path)
		}
		receivedAuth = r.Header.Get("Authorization")
		receivedContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	msgID, err := newTestSendGridClient(t, server.URL).Send(context.Background(), certificateInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "sg_msg_abc123" {
		t.Errorf("msgID = %q", msgID)
	}
	if receivedAuth != "Bearer SG.test_api_key" {
		t.Errorf("Authorization = %q", receivedAuth)
	}
	if receivedContentType != "application/json" {
		t.Errorf("Content-Type = %q", receivedContentType)
	}

	if len(received.Personalizations) != 1 || received.Personalizations[0].To[0].Email != "ada@example.com" {
		t.Errorf("unexpected personalizations: %+v", received.Personalizations)
	}
	if received.From.Email != "certs@example.org" || received.From.Name != "Certificates" {
		t.Errorf("unexpected from: %+v", received.From)
	}
	if received.Subject != "Your certificate" {
		t.Errorf("subject = %q", received.Subject)
	}
	if len(received.Content) != 1 || received.Content[0].Type != "text/plain" {
		t.Fatalf("unexpected content: %+v", received.Content)
	}
	if received.Content[0].Value != "Hello Ada Lovelace,\n\nThanks for attending." {
		t.Errorf("body = %q", received.Content[0].Value)
	}

	if len(received.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(received.Attachments))
	}
	att := received.Attachments[0]
	if att.Filename != "Ada Lovelace.png" || att.Type != "image/png" || att.Disposition != "attachment" {
		t.Errorf("unexpected attachment metadata: %+v", att)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Content)
	if err != nil || string(decoded) != "\x89PNG fake" {
		t.Errorf("attachment content did not round trip: %q (%v)", decoded, err)
	}
	if received.CustomArgs["reference_id"] != "run-1-0001" {
		t.Errorf("custom_args = %v", received.CustomArgs)
	}
}

func TestSendGridSend_NoReferenceIDOmitsCustomArgs(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	input := certificateInput()
	input.ReferenceID = ""
	input.Attachments = nil

	if _, err := newTestSendGridClient(t, server.URL).Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, ok := raw["custom_args"]; ok {
		t.Error("custom_args should be omitted without a reference id")
	}
	if _, ok := raw["attachments"]; ok {
		t.Error("attachments should be omitted when empty")
	}
}

func TestSendGridSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   types.ErrorCode
	}{
		{"forbidden", http.StatusForbidden, `{"errors":[{"message":"suppressed"}]}`, types.ErrCodeEmailBlocked},
		{"rate limited", http.StatusTooManyRequests, ``, types.ErrCodeUpstreamRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, types.ErrCodeUpstreamUnavailable},
		{"bad request", http.StatusBadRequest, `{"errors":[{"message":"bad from","field":"from"}]}`, types.ErrCodeUpstreamEmailProvider},
		{"non json body", http.StatusUnauthorized, `denied`, types.ErrCodeUpstreamEmailProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestSendGridClient(t, server.URL).Send(context.Background(), certificateInput())
			if !types.IsCode(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestSendGridSend_SingleAttemptOnServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewSendGridClient(&http.Client{Timeout: 5 * time.Second}, SendGridClientConfig{
		APIKey:  "SG.key",
		BaseURL: server.URL + "/",
	})
	_, _ = client.Send(context.Background(), certificateInput())
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
