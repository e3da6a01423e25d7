package mcpbridge

import (
	"fmt"
	"os/exec"
	"syscall"

	proto "github.com/BaSui01/tradeflow/agent/protocol/mcp"
	"go.uber.org/zap"
)

// stdioProcess wraps a spawned child tool server. It runs in its own
// process group so cleanup can reach grandchildren the server itself
// spawns, not just the direct child.
type stdioProcess struct {
	cmd *exec.Cmd
	pid int
}

func launchStdio(cfg ServerConfig, logger *zap.Logger) (*stdioProcess, proto.Transport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = cfg.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("mcpbridge: stdin pipe for %s: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("mcpbridge: stdout pipe for %s: %w", cfg.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("mcpbridge: start %s: %w", cfg.Name, err)
	}

	transport := proto.NewStdioTransport(stdout, stdin, logger)
	return &stdioProcess{cmd: cmd, pid: cmd.Process.Pid}, transport, nil
}

// terminate sends SIGTERM to the process group so grandchildren spawned by
// the tool server are reaped along with it, then reaps the process.
func (p *stdioProcess) terminate() error {
	if p == nil || p.cmd.Process == nil {
		return nil
	}
	// Negative pid targets the whole process group (requires Setpgid at
	// launch, set above).
	if err := syscall.Kill(-p.pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("mcpbridge: terminate pgid %d: %w", p.pid, err)
	}
	_ = p.cmd.Wait()
	return nil
}
