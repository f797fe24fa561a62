package runner

import (
	"context"
	"sync"
)

// Recorder is a Runner that executes nothing. It records every command and
// lets tests script side effects, outputs and failures per program.
type Recorder struct {
	mu       sync.Mutex
	commands []Command

	// Hooks run before a command with the given program name is recorded as
	// done; their error becomes the command's result.
	Hooks map[string]func(Command) error
	// Outputs holds the stdout returned by Output, keyed by Command.String().
	Outputs map[string][]byte
}

func NewRecorder() *Recorder {
	return &Recorder{
		Hooks:   make(map[string]func(Command) error),
		Outputs: make(map[string][]byte),
	}
}

func (r *Recorder) Run(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	hook := r.Hooks[cmd.Name]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		return hook(cmd)
	}
	return nil
}

func (r *Recorder) Output(ctx context.Context, cmd Command) ([]byte, error) {
	if err := r.Run(ctx, cmd); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Outputs[cmd.String()], nil
}

// Commands returns the recorded commands in execution order.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Lines returns the recorded commands rendered with Command.String.
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return lines
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}
