package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/foldboard/pkg/logger"
)

var _ Executor = (*ShellExecutor)(nil)

// ShellExecutor runs commands as subprocesses.
type ShellExecutor struct {
	logger logger.Logger
}

// NewShellExecutor creates a ShellExecutor. A nil logger uses the global one.
func NewShellExecutor(l logger.Logger) *ShellExecutor {
	if l == nil {
		l = logger.Get().Named("command")
	}
	return &ShellExecutor{logger: l}
}

// Execute implements Executor.
func (s *ShellExecutor) Execute(ctx context.Context, command *Command) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ShellExecutor.Execute", trace.WithAttributes(
		attribute.String("program", command.Program),
		attribute.StringSlice("args", command.Args),
	))
	defer span.End()

	var stdout, stderr bytes.Buffer

	//nolint:gosec // G204: programs and arguments come from configuration
	cmd := exec.CommandContext(ctx, command.Program, command.Args...)
	cmd.Stdin = command.Stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to execute command")
			return nil, err
		}
	}

	s.debugLines(ctx, "stdout", stdout.Bytes())
	s.debugLines(ctx, "stderr", stderr.Bytes())

	code := cmd.ProcessState.ExitCode()
	span.AddEvent("executed", trace.WithAttributes(attribute.Int("exitCode", code)))
	span.SetStatus(codes.Ok, "executed command")

	executed := make([]string, 0, len(command.Args)+1)
	executed = append(executed, command.Program)
	executed = append(executed, command.Args...)

	return &Result{
		Cmd:      executed,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: code,
	}, nil
}

func (s *ShellExecutor) debugLines(ctx context.Context, stream string, b []byte) {
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		s.logger.Debug(ctx, stream, logger.String("line", sc.Text()))
	}
}
