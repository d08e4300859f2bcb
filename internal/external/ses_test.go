package external

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"certgen/internal/types"
)

// mockSESAPI implements SESAPI for testing.
type mockSESAPI struct {
	sendEmailFunc func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func TestSESSend_RawMessage(t *testing.T) {
	var captured *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			captured = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-abc123")}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{ConfigSetName: "certgen-tracking"})

	msgID, err := client.Send(context.Background(), certificateInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "ses-msg-abc123" {
		t.Errorf("msgID = %q", msgID)
	}

	if captured.Content == nil || captured.Content.Raw == nil {
		t.Fatal("expected raw content")
	}
	if captured.Content.Simple != nil {
		t.Error("simple content must not be set alongside raw")
	}
	raw := string(captured.Content.Raw.Data)
	for _, want := range []string{"Subject: Your certificate", "ada@example.com", "Ada Lovelace.png", "image/png", "multipart/mixed"} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}

	if aws.ToString(captured.FromEmailAddress) != "certs@example.org" {
		t.Errorf("from = %q", aws.ToString(captured.FromEmailAddress))
	}
	if got := captured.Destination.ToAddresses; len(got) != 1 || got[0] != "ada@example.com" {
		t.Errorf("destination = %v", got)
	}
	if aws.ToString(captured.ConfigurationSetName) != "certgen-tracking" {
		t.Errorf("config set = %q", aws.ToString(captured.ConfigurationSetName))
	}
	if len(captured.EmailTags) != 1 || aws.ToString(captured.EmailTags[0].Value) != "run-1-0001" {
		t.Errorf("tags = %+v", captured.EmailTags)
	}
}

func TestSESSend_NoConfigSetNoTags(t *testing.T) {
	var captured *sesv2.SendEmailInput
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			captured = params
			return &sesv2.SendEmailOutput{}, nil
		},
	}

	input := certificateInput()
	input.ReferenceID = ""
	msgID, err := NewSESClientWithAPI(mock, SESClientConfig{}).Send(context.Background(), input)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "" {
		t.Errorf("msgID = %q, want empty for nil MessageId", msgID)
	}
	if captured.ConfigurationSetName != nil {
		t.Error("config set should be nil")
	}
	if captured.EmailTags != nil {
		t.Error("tags should be nil")
	}
}

func TestSESSend_InvalidRecipientNeverCallsAPI(t *testing.T) {
	called := false
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			called = true
			return &sesv2.SendEmailOutput{}, nil
		},
	}

	input := certificateInput()
	input.To = "not an address"
	_, err := NewSESClientWithAPI(mock, SESClientConfig{}).Send(context.Background(), input)
	if !types.IsCode(err, types.ErrCodeValidationInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if called {
		t.Error("SendEmail should not be called for an invalid recipient")
	}
}

func TestMapSESError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"rejected", &sestypes.MessageRejected{Message: aws.String("blocked")}, types.ErrCodeEmailBlocked},
		{"throttled", &sestypes.TooManyRequestsException{Message: aws.String("slow down")}, types.ErrCodeUpstreamRateLimited},
		{"paused", &sestypes.SendingPausedException{Message: aws.String("paused")}, types.ErrCodeUpstreamUnavailable},
		{"other", errors.New("connection reset"), types.ErrCodeUpstreamEmailProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapSESError(tt.err)
			if !types.IsCode(got, tt.want) {
				t.Errorf("mapSESError = %v, want %s", got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("original error should remain in the chain")
			}
		})
	}
}
