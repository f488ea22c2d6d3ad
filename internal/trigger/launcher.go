package trigger

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/petroleumjelliffe/socialsync/internal/logging"
)

// Launcher starts a script without waiting for it to finish
type Launcher interface {
	Launch(scriptPath string) error
}

// ExecLauncher runs scripts as child processes of the listener:
// <Interpreter> <scriptPath>
type ExecLauncher struct {
	Interpreter string
	log         zerolog.Logger
}

// NewExecLauncher creates a launcher using interpreter, e.g. "python3"
func NewExecLauncher(interpreter string) *ExecLauncher {
	return &ExecLauncher{
		Interpreter: interpreter,
		log:         logging.Component("launcher"),
	}
}

// Launch starts the script and returns once the process is running. The
// process is reaped in the background; its exit status is only logged.
func (l *ExecLauncher) Launch(scriptPath string) error {
	cmd := exec.Command(l.Interpreter, scriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", scriptPath, err)
	}

	pid := cmd.Process.Pid
	l.log.Info().Str("script", scriptPath).Int("pid", pid).Msg("Script started")

	go func() {
		if err := cmd.Wait(); err != nil {
			l.log.Warn().Err(err).Str("script", scriptPath).Int("pid", pid).Msg("Script exited with error")
			return
		}
		l.log.Info().Str("script", scriptPath).Int("pid", pid).Msg("Script finished")
	}()

	return nil
}
