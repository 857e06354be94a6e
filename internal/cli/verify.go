package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/resource"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// VerifyResult summarizes a ledger density check.
type VerifyResult struct {
	Revisions int64    `json:"revisions"`
	Gaps      []string `json:"gaps"`
}

func (r VerifyResult) String() string {
	return fmt.Sprintf("ledger consistent: %d revisions, no gaps", r.Revisions)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every resource has revisions 1..N with no gaps",
		Long: `Scan the revision ledger and report resources whose revisions are not
the dense sequence 1..N. Exits 1 when any gap is found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's database)")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	l, err := openLedger(opts.Database, cfg, true)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := cmd.Context()
	count, err := l.Count(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count revisions", err)
	}
	formatter.VerboseLog("checking %d revisions", count)

	gaps, err := l.Verify(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify ledger", err)
	}

	result := VerifyResult{Revisions: count, Gaps: make([]string, 0, len(gaps))}
	for _, g := range gaps {
		result.Gaps = append(result.Gaps, g.String())
	}
	if len(gaps) > 0 {
		formatter.Error(resource.CodeLedgerSequenceGap, fmt.Sprintf("%d resource(s) have revision gaps", len(gaps)), result.Gaps)
		return NewExitError(ExitFailure, "ledger has revision gaps")
	}
	return formatter.Success(result)
}
