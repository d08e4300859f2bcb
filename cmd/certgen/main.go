// Command certgen issues certificates to every recipient of a CSV list,
// either writing them to disk or mailing each one as an attachment.
//
//	certgen --csv attendees.csv --template certificate.png --mode local
//	certgen --csv attendees.csv --template certificate.png --mode email \
//	    --subject "Your certificate" --message body.txt
//
// Anything not given as a flag is prompted for. Mail credentials are read
// from the environment (EMAIL_PROVIDER, EMAIL_ACCOUNT, EMAIL_PASSWORD, ...).
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"certgen/internal/issuance"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &batchOptions{}

	root := &cobra.Command{
		Use:   "certgen",
		Short: "Generate and distribute certificates from a CSV list",
		Long: `Generate one certificate per CSV row (name,email) from a template image.

Modes:
  local  write <Name>.png files under --out (optionally bundled with --archive)
  email  send each certificate as an attachment, greeting the recipient by name

A report of every recipient's outcome is written as YAML (--report).`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), opts, newPrompter(in, errOut), errOut)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	f := root.Flags()
	f.StringVar(&opts.CSVPath, "csv", "", "path to the recipient CSV (name,email with header)")
	f.StringVar(&opts.TemplatePath, "template", "", "path to the certificate template image")
	f.StringVar(&opts.Mode, "mode", "", "delivery mode: local or email")
	f.StringVar(&opts.Subject, "subject", "", "email subject (email mode)")
	f.StringVar(&opts.MessagePath, "message", "", "path to the email body text (email mode)")
	f.StringVar(&opts.OutDir, "out", "certificates", "output directory (local mode)")
	f.BoolVar(&opts.Archive, "archive", false, "bundle local output into "+issuance.ArchiveName)
	f.BoolVar(&opts.DryRun, "dry-run", false, "render every certificate without writing or sending")
	f.StringVar(&opts.ReportPath, "report", "", "report path (default <out>/report.yaml or ./report.yaml)")
	f.BoolVarP(&opts.Yes, "yes", "y", false, "do not ask for confirmation before sending email")

	root.AddCommand(newReportCmd(out))
	return root
}

func newReportCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "report <report.yaml>",
		Short: "Summarise a previous run and list its failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return printReport(args[0], out)
		},
	}
}
