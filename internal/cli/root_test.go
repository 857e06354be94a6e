package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ledger"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/store"
	"github.com/roach88/nexus/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nexus", cmd.Use)
	assert.Contains(t, cmd.Long, "immutable revision")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "history", "verify", "reindex", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "verify", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "verify", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingDatabase(t *testing.T) {
	_, _, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "nope.db"), "bbp")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

// execute runs the root command with args and captures both streams.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// seedLedger writes an organization with two revisions and a domain, then
// closes the database so commands can reopen it.
func seedLedger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nexus.db")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	s := store.New(l, store.WithClock(testutil.NewStepClock()))
	org := resource.MustRef("bbp")
	_, err = s.Create(ctx, org, testutil.MustObject(t, `{"description": "Big Brain"}`))
	require.NoError(t, err)
	_, err = s.Update(ctx, org, testutil.MustObject(t, `{"description": "Blue Brain"}`), 1)
	require.NoError(t, err)
	_, err = s.Create(ctx, resource.MustRef("bbp", "core"), testutil.MustObject(t, `{}`))
	require.NoError(t, err)
	return path
}
