package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/index"
)

// ReindexOptions holds flags for the reindex command.
type ReindexOptions struct {
	*RootOptions
	Database string
}

// ReindexResult reports how many revisions were replayed.
type ReindexResult struct {
	Revisions int `json:"revisions"`
}

func (r ReindexResult) String() string {
	return fmt.Sprintf("search index rebuilt from %d revisions", r.Revisions)
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReindexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search projection from the revision ledger",
		Long: `Drop the search projection and replay every committed revision into it.

Run this while the server is stopped; the projection is derived state and
the ledger is never modified.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's database)")

	return cmd
}

func runReindex(opts *ReindexOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := opts.newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	l, err := openLedger(opts.Database, cfg, true)
	if err != nil {
		return err
	}
	defer l.Close()

	ix, err := index.New(l.DB(), cfg.Index.Shards, index.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open search index", err)
	}
	defer ix.Close()

	n, err := ix.Rebuild(cmd.Context(), l)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to rebuild search index", err)
	}
	return formatter.Success(ReindexResult{Revisions: n})
}
