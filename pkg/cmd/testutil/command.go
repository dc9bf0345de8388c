package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/urfave/cli/v3"
)

// RunCommand executes a command with test context
func RunCommand(t *testing.T, command *cli.Command, args []string) error {
	t.Helper()
	return RunCommandWithContext(t.Context(), t, command, args)
}

// RunCommandWithContext executes a command with a custom context
func RunCommandWithContext(ctx context.Context, t *testing.T, command *cli.Command, args []string) error {
	t.Helper()

	app := &cli.Command{
		Name:     "test",
		Commands: []*cli.Command{command},
	}

	return app.Run(ctx, append([]string{"test", command.Name}, args...))
}

// CaptureCommand executes a command and returns what it wrote to its writer.
func CaptureCommand(t *testing.T, command *cli.Command, args []string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := &cli.Command{
		Name:      "test",
		Writer:    &out,
		ErrWriter: &out,
		Commands:  []*cli.Command{command},
	}

	err := app.Run(t.Context(), append([]string{"test", command.Name}, args...))
	return out.String(), err
}

// CreateTestCommand creates a simple test command for testing purposes
func CreateTestCommand(name string, action func(context.Context, *cli.Command) error) *cli.Command {
	return &cli.Command{
		Name:   name,
		Action: action,
	}
}
