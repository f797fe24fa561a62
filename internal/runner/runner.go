// Package runner executes external tools from an explicit argument list,
// without a shell in between.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command is a single invocation of an external program. Dir, when set, is
// the working directory the program runs in.
type Command struct {
	Dir  string
	Name string
	Args []string
}

func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// In returns a copy of c that runs in dir.
func (c Command) In(dir string) Command {
	c.Dir = dir
	return c
}

// String renders the command the way an operator would type it, including
// the working directory change.
func (c Command) String() string {
	var b strings.Builder
	if c.Dir != "" {
		fmt.Fprintf(&b, "cd %s; ", c.Dir)
	}
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

type Runner interface {
	// Run waits for the command to finish. A non-nil error means the command
	// could not be started or exited unsuccessfully.
	Run(ctx context.Context, cmd Command) error
	// Output runs the command and returns its standard output.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// Exec runs commands as child processes. Stdout and Stderr receive the
// output of Run; nil discards it.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (e *Exec) command(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	return cmd
}

func (e *Exec) Run(ctx context.Context, c Command) error {
	cmd := e.command(ctx, c)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

func (e *Exec) Output(ctx context.Context, c Command) ([]byte, error) {
	cmd := e.command(ctx, c)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", c.Name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", c.Name, err)
	}
	return out, nil
}
