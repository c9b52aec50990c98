package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecPusher runs the external repository-push script as a child process.
type ExecPusher struct {
	command []string
}

func NewExecPusher(command string) (*ExecPusher, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, errors.New("push command is empty")
	}
	return &ExecPusher{command: parts}, nil
}

func (p *ExecPusher) Push(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", p.command[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}
