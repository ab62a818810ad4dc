package stats

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes a command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	Close() error
}

// execRunner runs commands on the local host.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (execRunner) Close() error { return nil }

// CommandSource reads snapshots by running a vendor statistics dump command that prints a
// YAML snapshot document.
type CommandSource struct {
	name   string
	args   []string
	runner CommandRunner

	baseline baseline
}

// CommandOption configures a CommandSource.
type CommandOption func(*CommandSource)

// WithRunner replaces the local os/exec runner, for example with an SSH runner.
func WithRunner(r CommandRunner) CommandOption {
	return func(c *CommandSource) {
		c.runner = r
	}
}

// NewCommandSource creates a stat stream that runs name with args on every read.
func NewCommandSource(name string, args []string, opts ...CommandOption) (*CommandSource, error) {
	if name == "" {
		return nil, fmt.Errorf("opening stat stream: command is required")
	}
	c := &CommandSource{
		name:   name,
		args:   append([]string(nil), args...),
		runner: execRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReadStats implements Source. Every run produces fresh counters, so ModeBlocking behaves
// like ModePoll.
func (c *CommandSource) ReadStats(ctx context.Context, mode Mode, clear bool, s *Snapshot) error {
	out, err := c.runner.Run(ctx, c.name, c.args...)
	if err != nil {
		return fmt.Errorf("running %s %s: %w", c.name, strings.Join(c.args, " "), err)
	}
	if err := decode(out, s); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	c.baseline.apply(s, clear)
	return nil
}

// Close implements Source.
func (c *CommandSource) Close() error {
	return c.runner.Close()
}
