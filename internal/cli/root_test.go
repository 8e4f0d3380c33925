package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "revops", cmd.Use)
	assert.Contains(t, cmd.Long, "REVOPS_DB")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"generate"},
		{"validate"},
		{"run"},
		{"runs", "list"},
		{"runs", "show"},
		{"runs", "diff"},
		{"runs", "export"},
		{"issue", "acknowledge"},
		{"issue", "snooze"},
		{"issue", "resolve"},
		{"issue", "reopen"},
		{"issue", "expire"},
		{"replay"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestAckAlias(t *testing.T) {
	cmd := NewRootCommand()
	subCmd, _, err := cmd.Find([]string{"issue", "ack"})
	require.NoError(t, err)
	assert.Equal(t, "acknowledge", subCmd.Name())
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestEnvSeedsFlagDefaults(t *testing.T) {
	t.Setenv("REVOPS_DB", "/tmp/other.db")
	t.Setenv("REVOPS_SEED", "99")
	t.Setenv("REVOPS_SETTINGS", "team.yaml")

	cmd := NewRootCommand()
	assert.Equal(t, "/tmp/other.db", cmd.PersistentFlags().Lookup("db").DefValue)

	gen, _, err := cmd.Find([]string{"generate"})
	require.NoError(t, err)
	assert.Equal(t, "99", gen.Flags().Lookup("seed").DefValue)

	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "team.yaml", run.Flags().Lookup("settings").DefValue)
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("REVOPS_SEED", "not-a-number")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"runs", "list", "--db", t.TempDir() + "/x.db"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestInvalidFormat(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.exec("runs", "list", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}
