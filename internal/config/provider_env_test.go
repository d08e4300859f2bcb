package config

import (
	"context"
	"testing"
)

func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*EnvVarProvider)(nil)
	var _ SecretProvider = NewEnvVarProvider()
}

func TestEnvVarProviderReturnsSetVariables(t *testing.T) {
	t.Setenv("CERTGEN_TEST_SECRET_A", "value-alpha")
	t.Setenv("CERTGEN_TEST_SECRET_B", "value-beta")

	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(),
		[]string{"CERTGEN_TEST_SECRET_A", "CERTGEN_TEST_SECRET_B"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result))
	}
	if got := result["CERTGEN_TEST_SECRET_A"]; got != "value-alpha" {
		t.Errorf("result[A] = %q, want %q", got, "value-alpha")
	}
	if got := result["CERTGEN_TEST_SECRET_B"]; got != "value-beta" {
		t.Errorf("result[B] = %q, want %q", got, "value-beta")
	}
}

func TestEnvVarProviderOmitsMissingVariables(t *testing.T) {
	p := &EnvVarProvider{lookup: func(string) (string, bool) { return "", false }}

	result, err := p.GetParametersBatch(context.Background(), []string{"NOPE"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result for missing key, got %v", result)
	}
}

func TestEnvVarProviderKeepsEmptyValues(t *testing.T) {
	p := &EnvVarProvider{lookup: func(k string) (string, bool) { return "", k == "EMPTY" }}

	result, _ := p.GetParametersBatch(context.Background(), []string{"EMPTY"})
	if v, ok := result["EMPTY"]; !ok || v != "" {
		t.Errorf("result[EMPTY] = %q, %v; want empty string present", v, ok)
	}
}
