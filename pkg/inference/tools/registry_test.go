package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegistrationOrderSurvivesListing(t *testing.T) {
	t.Parallel()

	reg := NewInMemoryToolRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		def := mustTool(t, name, func() (string, error) { return "", nil })
		require.NoError(t, reg.RegisterTool(name, *def))
	}

	listed := reg.ListTools()
	require.Len(t, listed, 3)
	require.Equal(t, "zeta", listed[0].Name)
	require.Equal(t, "alpha", listed[1].Name)
	require.Equal(t, "mid", listed[2].Name)
}

func TestRegistry_NameMismatchRejected(t *testing.T) {
	t.Parallel()

	reg := NewInMemoryToolRegistry()
	def := mustTool(t, "real_name", func() (string, error) { return "", nil })
	require.Error(t, reg.RegisterTool("other_name", *def))
}

func TestRegistry_Unregister(t *testing.T) {
	t.Parallel()

	reg := NewInMemoryToolRegistry()
	def := mustTool(t, "tmp", func() (string, error) { return "", nil })
	require.NoError(t, reg.RegisterTool("tmp", *def))
	require.NoError(t, reg.UnregisterTool("tmp"))
	require.Error(t, reg.UnregisterTool("tmp"))

	_, err := reg.GetTool("tmp")
	require.Error(t, err)
}

func TestRepairToolName(t *testing.T) {
	t.Parallel()

	reg := NewInMemoryToolRegistry()
	def := mustTool(t, "read_file", func() (string, error) { return "", nil })
	require.NoError(t, reg.RegisterTool("read_file", *def))

	cases := []struct {
		in    string
		want  string
		found bool
	}{
		{"read_file", "read_file", true},
		{"READ_FILE", "read_file", true},
		{"ReadFile", "read_file", true},
		{"readFile", "read_file", true},
		{"write_file", "write_file", false},
	}
	for _, tc := range cases {
		got, found := RepairToolName(reg, tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
		require.Equal(t, tc.found, found, "input %q", tc.in)
	}
}

func TestToolConfig_AllowedToolPatterns(t *testing.T) {
	t.Parallel()

	cfg := DefaultToolConfig().WithAllowedTools([]string{"read_*", "list_files"})
	require.True(t, cfg.IsToolAllowed("read_file"))
	require.True(t, cfg.IsToolAllowed("list_files"))
	require.False(t, cfg.IsToolAllowed("run_command"))

	open := DefaultToolConfig()
	require.True(t, open.IsToolAllowed("anything"))
}
