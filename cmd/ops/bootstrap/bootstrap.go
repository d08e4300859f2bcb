package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// BootstrapStep is one secret the deployment needs.
type BootstrapStep struct {
	// HumanLabel is the name shown to the operator.
	HumanLabel string

	// SSMCategoryKey becomes /{env}/certgen/{SSMCategoryKey}.
	SSMCategoryKey string

	// EnvVar is the configuration variable the parameter feeds. The
	// entry points read it through EnvVar + "_SSM_PARAM".
	EnvVar string

	Prompt     string
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// Optional steps are skipped on empty input without asking.
	Optional bool

	Phase string
}

// maxRetries caps validation failures per step.
const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory lists the certgen secrets in prompt order.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Mail Account Password",
			SSMCategoryKey: "email/password",
			EnvVar:         "EMAIL_PASSWORD",
			Prompt: `Password (or app password) of the EMAIL_ACCOUNT mailbox used for SMTP.
   Paste it here:`,
			ValidateFn: v.ValidateEmailPassword,
			Phase:      "Mail Delivery",
		},
		{
			HumanLabel:     "SendGrid API Key",
			SSMCategoryKey: "email/sendgrid_api_key",
			EnvVar:         "SENDGRID_API_KEY",
			Prompt: `1. Go to SendGrid > Settings > API Keys.
   2. Create a key with Mail Send permission (SG....).
   3. Paste it here, or leave empty when SendGrid is not used:`,
			ValidateFn: v.ValidateSendGridKey,
			Optional:   true,
			Phase:      "Mail Delivery",
		},
		{
			HumanLabel:     "Resend API Key",
			SSMCategoryKey: "email/resend_api_key",
			EnvVar:         "RESEND_API_KEY",
			Prompt: `1. Go to Resend > API Keys.
   2. Create a sending key (re_...).
   3. Paste it here, or leave empty when Resend is not used:`,
			ValidateFn: v.ValidateResendKey,
			Optional:   true,
			Phase:      "Mail Delivery",
		},
		{
			HumanLabel:     "Roster Database URL",
			SSMCategoryKey: "database/url",
			EnvVar:         "DATABASE_URL",
			Prompt: `Connection string of the roster database (postgres://...).
   Leave empty when rosters are served from files or S3:`,
			ValidateFn: v.ValidateDatabaseURL,
			Optional:   true,
			Phase:      "Roster Storage",
		},
	}
}

// filterInventory keeps the steps named by keys, in inventory order.
func filterInventory(inv []BootstrapStep, keys []string) ([]BootstrapStep, error) {
	known := make(map[string]bool, len(inv))
	for _, step := range inv {
		known[step.SSMCategoryKey] = true
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if !known[k] {
			return nil, fmt.Errorf("unknown parameter key %q", k)
		}
		want[k] = true
	}

	var out []BootstrapStep
	for _, step := range inv {
		if want[step.SSMCategoryKey] {
			out = append(out, step)
		}
	}
	return out, nil
}

// BootstrapRunner drives the prompts and SSM writes.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	scanner *bufio.Scanner

	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner wires the runner to the session.
func NewBootstrapRunner(sess *Session, stdin io.Reader, stderr io.Writer) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(sess),
		Validator: NewValidator(),
		Stdin:     stdin,
		Stderr:    stderr,
	}
}

// Run processes every step, then prints the summary and the pointer
// variables to configure.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventoryOverride
	if inventory == nil {
		inventory = BuildInventory(r.Validator)
	}

	var currentPhase string
	var results []stepResult

	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}

		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

type stepResult struct {
	Label  string
	EnvVar string
	Action string // written, overwritten, kept, skipped
	Path   string
}

// stored reports whether the parameter exists after the step.
func (s stepResult) stored() bool {
	return s.Action != "skipped"
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, EnvVar: step.EnvVar, Path: path}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)

		choice, err := r.promptKeepOrOverwrite()
		if err != nil {
			return result, fmt.Errorf("reading keep/overwrite choice: %w", err)
		}
		if choice == "keep" {
			fmt.Fprintf(r.Stderr, "  Kept.\n")
			result.Action = "kept"
			return result, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		if exists {
			result.Action = "kept"
		}
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if err := r.SSM.PutSecret(ctx, path, value, exists); err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads masked input and retries on validation failure.
// Empty input skips optional steps; required steps ask skip or retry.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		input, err := r.readSecretInput("  > ")
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.promptSkipOrRetry()
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt--
			continue
		}

		fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) getScanner() *bufio.Scanner {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	return r.scanner
}

// scanLine returns io.EOF when input is exhausted.
func (r *BootstrapRunner) scanLine() (string, error) {
	s := r.getScanner()
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.Text(), nil
}

// readSecretInput disables echo on a terminal and falls back to line
// reading for piped input.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}
	return r.scanLine()
}

func (r *BootstrapRunner) promptKeepOrOverwrite() (string, error) {
	for {
		fmt.Fprint(r.Stderr, "  [K]eep or [O]verwrite? ")

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "k", "keep":
			return "keep", nil
		case "o", "overwrite":
			return "overwrite", nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'K' to keep or 'O' to overwrite.\n")
		}
	}
}

func (r *BootstrapRunner) promptSkipOrRetry() (string, error) {
	for {
		fmt.Fprint(r.Stderr, "  No input received. [S]kip this parameter or [R]etry? ")

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "s", "skip":
			return "skip", nil
		case "r", "retry":
			return "retry", nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'S' to skip or 'R' to retry.\n")
		}
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Kept: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["kept"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")

	fmt.Fprintf(r.Stderr, "  Set these in the function or server environment:\n\n")
	for _, res := range results {
		if res.stored() {
			fmt.Fprintf(r.Stderr, "    %s_SSM_PARAM=%s\n", res.EnvVar, res.Path)
		}
	}
	fmt.Fprintln(r.Stderr)
}
