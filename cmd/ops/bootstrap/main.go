// Package main implements the bootstrap CLI for certgen deployments.
//
// The tool walks an operator through the secrets a deployed environment
// needs (mail credentials, provider API keys, the roster database URL) and
// stores each one as a SecureString in AWS SSM Parameter Store. It finishes
// by printing the *_SSM_PARAM pointers the entry points resolve at start.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=certgen-prod --region=eu-west-1
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// Session holds what the bootstrap phases share once the AWS identity is
// confirmed.
type Session struct {
	Environment string
	AWSProfile  string
	AWSRegion   string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
	Logger      *slog.Logger
}

// STSClient is the subset of STS used to confirm credentials.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdin, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	env     string
	profile string
	region  string
	only    []string
}

func newRootCmd(stdin io.Reader, stderr io.Writer) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "bootstrap --env=ENV",
		Short:         "Store certgen secrets in AWS SSM Parameter Store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runBootstrap(cmd.Context(), f, stdin, stderr)
			if err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
			}
			return err
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	cmd.Flags().StringVar(&f.env, "env", "", "target environment (dev/staging/prod)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "AWS CLI profile (default credential chain when empty)")
	cmd.Flags().StringVar(&f.region, "region", "us-east-1", "AWS region")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "limit the run to these parameter keys (e.g. email/password)")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}

func runBootstrap(ctx context.Context, f flags, stdin io.Reader, stderr io.Writer) error {
	if !validEnvironments[f.env] {
		return fmt.Errorf("invalid environment %q (must be dev, staging, or prod)", f.env)
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := loadAWSConfig(ctx, f.profile, f.region)
	if err != nil {
		return err
	}
	sess, err := initializeSession(ctx, sts.NewFromConfig(cfg), f, cfg, logger)
	if err != nil {
		return err
	}

	runner := NewBootstrapRunner(sess, stdin, stderr)
	if sess.Environment == "prod" && !confirmProduction(sess, runner.getScanner(), stderr) {
		fmt.Fprintln(stderr, "Aborted. No changes were made.")
		return nil
	}

	printBanner(sess, stderr)

	if len(f.only) > 0 {
		inv, err := filterInventory(BuildInventory(runner.Validator), f.only)
		if err != nil {
			return err
		}
		runner.inventoryOverride = inv
	}

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	logger.Info("bootstrap completed",
		"env", sess.Environment,
		"account", sess.AccountID,
		"region", sess.AWSRegion,
	)
	return nil
}

func loadAWSConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// initializeSession confirms the active identity with STS GetCallerIdentity
// before any parameter is touched.
func initializeSession(ctx context.Context, client STSClient, f flags, cfg aws.Config, logger *slog.Logger) (*Session, error) {
	identityCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identity, err := client.GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w\n"+
			"  Check that your AWS credentials are configured correctly.\n"+
			"  Profile: %q, Region: %q", err, f.profile, f.region)
	}

	sess := &Session{
		Environment: f.env,
		AWSProfile:  f.profile,
		AWSRegion:   f.region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}

	logger.Info("AWS identity verified",
		"account_id", sess.AccountID,
		"arn", sess.CallerARN,
		"region", sess.AWSRegion,
	)
	return sess, nil
}

// confirmProduction requires the operator to type "yes" before any write
// to the production environment.
func confirmProduction(sess *Session, scanner *bufio.Scanner, w io.Writer) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintln(w, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintf(w, "  Account: %s\n", sess.AccountID)
	fmt.Fprintf(w, "  Region:  %s\n", sess.AWSRegion)
	fmt.Fprintf(w, "  ARN:     %s\n", sess.CallerARN)
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintln(w)
	fmt.Fprint(w, "Type 'yes' to continue: ")

	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

func printBanner(sess *Session, w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "------------------------------------------------------------")
	fmt.Fprintln(w, "  certgen bootstrap")
	fmt.Fprintln(w, "------------------------------------------------------------")
	fmt.Fprintf(w, "  Environment:  %s\n", sess.Environment)
	fmt.Fprintf(w, "  AWS Account:  %s\n", sess.AccountID)
	fmt.Fprintf(w, "  AWS Region:   %s\n", sess.AWSRegion)
	fmt.Fprintf(w, "  Identity:     %s\n", sess.CallerARN)
	if sess.AWSProfile != "" {
		fmt.Fprintf(w, "  Profile:      %s\n", sess.AWSProfile)
	}
	fmt.Fprintf(w, "  SSM Prefix:   /%s/certgen/\n", sess.Environment)
	fmt.Fprintln(w, "------------------------------------------------------------")
	fmt.Fprintln(w)
}
