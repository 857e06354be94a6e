package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/resource"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
}

// RevisionSummary is one line of history output.
type RevisionSummary struct {
	Rev         int64     `json:"rev"`
	Event       string    `json:"event"`
	Deprecated  bool      `json:"deprecated"`
	Published   bool      `json:"published,omitempty"`
	PayloadHash string    `json:"payloadHash"`
	Attachment  string    `json:"attachment,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// History is the text-printable result of the history command.
type History struct {
	Ref       string            `json:"ref"`
	Revisions []RevisionSummary `json:"revisions"`
}

func (h History) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d revisions)", h.Ref, len(h.Revisions))
	for _, r := range h.Revisions {
		fmt.Fprintf(&b, "\n  %3d  %-10s  %s", r.Rev, r.Event, r.CreatedAt.UTC().Format(time.RFC3339))
		if r.Deprecated {
			b.WriteString("  deprecated")
		}
		if r.Published {
			b.WriteString("  published")
		}
		if r.Attachment != "" {
			b.WriteString("  attachment=" + r.Attachment)
		}
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <ref>",
		Short: "Print every revision of a resource",
		Long: `Print the revision history of one resource, oldest first.

The ref is the slash-joined resource path:
  nexus history bbp
  nexus history bbp/core/person/v1.0.0
  nexus history --format json bbp/core/person/v1.0.0/0190c2a4-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's database)")

	return cmd
}

func runHistory(opts *HistoryOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ref, err := resource.ParseRef(path)
	if err != nil {
		formatter.Error(resource.Code(err), resource.Message(err), nil)
		return WrapExitError(ExitCommandError, "invalid ref", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	l, err := openLedger(opts.Database, cfg, true)
	if err != nil {
		return err
	}
	defer l.Close()

	snaps, err := l.History(cmd.Context(), ref)
	if err != nil {
		if resource.IsNotFound(err) {
			formatter.Error(resource.Code(err), resource.Message(err), nil)
			return WrapExitError(ExitFailure, "resource not found", err)
		}
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	out := History{Ref: ref.String(), Revisions: make([]RevisionSummary, 0, len(snaps))}
	for _, s := range snaps {
		r := RevisionSummary{
			Rev:         s.Rev,
			Event:       string(s.Event),
			Deprecated:  s.Deprecated,
			Published:   s.Published,
			PayloadHash: s.PayloadHash,
			CreatedAt:   s.CreatedAt,
		}
		if s.Attachment != nil {
			r.Attachment = s.Attachment.Digest
		}
		out.Revisions = append(out.Revisions, r)
	}
	return formatter.Success(out)
}
