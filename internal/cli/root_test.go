package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "portalql", cmd.Use)
	assert.Contains(t, cmd.Long, "PQL statements")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"parse"},
		{"compile"},
		{"models"},
		{"search"},
		{"lookup", "provision"},
		{"lookup", "create"},
		{"lookup", "show"},
		{"sets", "materialize"},
		{"sets", "list"},
		{"sets", "show"},
		{"sets", "delete"},
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

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	postFilterFlag := compileCmd.Flags().Lookup("post-filter")
	require.NotNil(t, postFilterFlag)
	assert.Equal(t, "false", postFilterFlag.DefValue)

	maxTermsFlag := compileCmd.Flags().Lookup("max-terms")
	require.NotNil(t, maxTermsFlag)
	assert.Equal(t, "0", maxTermsFlag.DefValue)
}

func TestSearchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	searchCmd, _, err := cmd.Find([]string{"search"})
	require.NoError(t, err)

	require.NotNil(t, searchCmd.Flags().Lookup("post-filter"))
	countFlag := searchCmd.Flags().Lookup("count")
	require.NotNil(t, countFlag)
	assert.Equal(t, "false", countFlag.DefValue)
}

func TestLookupCreateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"lookup", "create"})
	require.NoError(t, err)

	typeFlag := createCmd.Flags().Lookup("type")
	require.NotNil(t, typeFlag)
	assert.Equal(t, "donor-ids", typeFlag.DefValue)

	require.NotNil(t, createCmd.Flags().Lookup("id"))
	require.NotNil(t, createCmd.Flags().Lookup("transient"))
	require.NotNil(t, createCmd.Flags().Lookup("repo"))
}

func TestSetsMaterializeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	materializeCmd, _, err := cmd.Find([]string{"sets", "materialize"})
	require.NoError(t, err)

	require.NotNil(t, materializeCmd.Flags().Lookup("name"))
	require.NotNil(t, materializeCmd.Flags().Lookup("description"))
	limitFlag := materializeCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "0", limitFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "parse", "eq(gender,'male')"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
