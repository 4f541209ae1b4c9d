package main

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kongExit struct{ code int }

func parseWithExit(t *testing.T, cli any, args []string) (stdout bytes.Buffer, didExit bool, exitCode int) {
	t.Helper()
	exitCode = -1

	parser, err := kong.New(cli,
		kong.Name("ragpref"),
		kong.Exit(func(code int) {
			didExit = true
			exitCode = code
			panic(kongExit{code: code})
		}),
	)
	require.NoError(t, err)
	parser.Stdout = &stdout
	parser.Stderr = &stdout

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(kongExit); ok {
					return
				}
				panic(r)
			}
		}()
		_, err = parser.Parse(args)
		require.NoError(t, err)
	}()

	return stdout, didExit, exitCode
}

func TestCLI_HelpFlag(t *testing.T) {
	var cli struct {
		Version VersionCmd `cmd:""`
		Help    HelpCmd    `cmd:"" hidden:"" default:"1"`
		List    ListCmd    `cmd:""`
		Ask     AskCmd     `cmd:""`
	}
	stdout, didExit, exitCode := parseWithExit(t, &cli, []string{"--help"})
	assert.True(t, didExit)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Usage: ragpref")
}

func TestCLI_AskRequiresQuestion(t *testing.T) {
	var cli struct {
		Ask AskCmd `cmd:""`
	}
	parser, err := kong.New(&cli, kong.Name("ragpref"), kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"ask"})
	assert.Error(t, err)
}

func TestCLI_AskParsesQuestionAndFlags(t *testing.T) {
	var cli struct {
		Ask AskCmd `cmd:""`
	}
	parser, err := kong.New(&cli, kong.Name("ragpref"), kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"ask", "what is the retry backoff schedule?", "--generator", "testgen.Echo"})
	require.NoError(t, err)
	assert.Equal(t, "what is the retry backoff schedule?", cli.Ask.Question)
	assert.Equal(t, "testgen.Echo", cli.Ask.Generator)
}

func TestListCmd_Run(t *testing.T) {
	l := &ListCmd{}
	assert.NoError(t, l.Run())
}
