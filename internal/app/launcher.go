package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// forceGrace is added to the shutdown timeout when waiting for a stop.
const forceGrace = 5 * time.Second

// logFileName receives the output of a launched supervisor.
const logFileName = "supervisor.log"

// ExecLauncher starts the current executable with args in its own session
// and returns its pid. Output goes to supervisor.log in the --run-dir
// argument when present, otherwise it is discarded.
func ExecLauncher(args ...string) supervisor.Launcher {
	return func(context.Context) (int, error) {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("locate executable: %w", err)
		}

		cmd := exec.Command(exe, args...)
		cmd.Env = os.Environ()
		detach(cmd)

		if dir := runDirArg(args); dir != "" {
			f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return 0, fmt.Errorf("open supervisor log: %w", err)
			}
			defer f.Close()
			cmd.Stdout = f
			cmd.Stderr = f
		}

		if err := cmd.Start(); err != nil {
			return 0, err
		}
		pid := cmd.Process.Pid
		// Reap the child if this process outlives it.
		go func() { _ = cmd.Wait() }()
		return pid, nil
	}
}

func runDirArg(args []string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--run-dir" {
			return args[i+1]
		}
	}
	return ""
}
