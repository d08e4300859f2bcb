package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient records calls and returns configurable responses.
type mockSSMClient struct {
	getParameterFn func(ctx context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	putParameterFn func(ctx context.Context, input *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)

	getCalls []*ssm.GetParameterInput
	putCalls []*ssm.PutParameterInput
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls = append(m.getCalls, params)
	if m.getParameterFn != nil {
		return m.getParameterFn(ctx, params)
	}
	return &ssm.GetParameterOutput{}, nil
}

func (m *mockSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, params)
	if m.putParameterFn != nil {
		return m.putParameterFn(ctx, params)
	}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func newTestSSMManager(mock *mockSSMClient, env string, logs *bytes.Buffer) *SSMManager {
	if logs == nil {
		logs = &bytes.Buffer{}
	}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewSSMManagerWithClient(mock, env, logger)
}

func TestSSMPath(t *testing.T) {
	tests := []struct {
		env      string
		key      string
		expected string
	}{
		{"dev", "email/password", "/dev/certgen/email/password"},
		{"prod", "database/url", "/prod/certgen/database/url"},
		{"staging", "email/resend_api_key", "/staging/certgen/email/resend_api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			m := newTestSSMManager(&mockSSMClient{}, tt.env, nil)
			if got := m.SSMPath(tt.key); got != tt.expected {
				t.Errorf("SSMPath(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestParameterExists(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock := &mockSSMClient{}
		m := newTestSSMManager(mock, "dev", nil)

		exists, err := m.ParameterExists(context.Background(), "/dev/certgen/email/password")
		if err != nil || !exists {
			t.Fatalf("ParameterExists = %v, %v; want true, nil", exists, err)
		}
		if aws.ToBool(mock.getCalls[0].WithDecryption) {
			t.Error("existence probe must not decrypt")
		}
	})

	t.Run("not found", func(t *testing.T) {
		mock := &mockSSMClient{
			getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
				return nil, &ssmtypes.ParameterNotFound{}
			},
		}
		exists, err := newTestSSMManager(mock, "dev", nil).ParameterExists(context.Background(), "/dev/certgen/x")
		if err != nil || exists {
			t.Fatalf("ParameterExists = %v, %v; want false, nil", exists, err)
		}
	})

	t.Run("other error", func(t *testing.T) {
		mock := &mockSSMClient{
			getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
				return nil, errors.New("access denied")
			},
		}
		_, err := newTestSSMManager(mock, "dev", nil).ParameterExists(context.Background(), "/dev/certgen/x")
		if err == nil || !strings.Contains(err.Error(), "access denied") {
			t.Fatalf("expected wrapped access denied error, got %v", err)
		}
	})
}

func TestPutSecret(t *testing.T) {
	t.Run("writes SecureString without logging the value", func(t *testing.T) {
		mock := &mockSSMClient{}
		var logs bytes.Buffer
		m := newTestSSMManager(mock, "dev", &logs)

		if err := m.PutSecret(context.Background(), "/dev/certgen/email/password", "hunter2hunter2", false); err != nil {
			t.Fatalf("PutSecret: %v", err)
		}
		if len(mock.putCalls) != 1 {
			t.Fatalf("expected 1 put call, got %d", len(mock.putCalls))
		}
		call := mock.putCalls[0]
		if call.Type != ssmtypes.ParameterTypeSecureString {
			t.Errorf("Type = %q, want SecureString", call.Type)
		}
		if aws.ToBool(call.Overwrite) {
			t.Error("Overwrite should be false")
		}
		if strings.Contains(logs.String(), "hunter2") {
			t.Error("secret value leaked into logs")
		}
		if !strings.Contains(logs.String(), "value_length=14") {
			t.Errorf("expected value length in logs, got %s", logs.String())
		}
	})

	t.Run("rejects empty path and value", func(t *testing.T) {
		m := newTestSSMManager(&mockSSMClient{}, "dev", nil)
		if err := m.PutSecret(context.Background(), "", "v", false); err == nil {
			t.Error("expected error for empty path")
		}
		if err := m.PutSecret(context.Background(), "/dev/certgen/x", "", false); err == nil {
			t.Error("expected error for empty value")
		}
	})

	t.Run("already exists", func(t *testing.T) {
		mock := &mockSSMClient{
			putParameterFn: func(context.Context, *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
				return nil, &ssmtypes.ParameterAlreadyExists{}
			},
		}
		err := newTestSSMManager(mock, "dev", nil).PutSecret(context.Background(), "/dev/certgen/x", "value", false)
		var exists *ssmtypes.ParameterAlreadyExists
		if !errors.As(err, &exists) {
			t.Fatalf("expected ParameterAlreadyExists in chain, got %v", err)
		}
	})
}
