// Package command runs external programs such as the batch scheduler CLI and
// structural aligners.
package command

import (
	"context"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/okian/foldboard/internal/adapters/command")

// Result is the outcome of a finished process.
type Result struct {
	Cmd      []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Success reports a zero exit code.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// Output returns stdout and stderr joined, trimmed.
func (r *Result) Output() string {
	return strings.TrimSpace(string(r.Stdout) + "\n" + string(r.Stderr))
}

// Command describes one process invocation.
type Command struct {
	Stdin   io.Reader
	Dir     string
	Env     []string
	Program string
	Args    []string
}

// New creates a Command.
func New(program string, args ...string) *Command {
	return &Command{
		Program: program,
		Args:    args,
	}
}

// Executor runs commands. A nonzero exit code is reported in the Result, not
// as an error; errors mean the process could not be started or waited for.
type Executor interface {
	Execute(ctx context.Context, cmd *Command) (*Result, error)
}
