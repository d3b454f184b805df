package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/arcbound/taskmaster/internal/env"
	"github.com/arcbound/taskmaster/internal/policy"
)

// buildCmd constructs the *exec.Cmd for prog and opens its stdout/stderr
// redirection files in append/create mode (spec §6). The child is placed
// in its own process group (Setpgid) so stop signals can be delivered to
// the whole group, matching how supervisord-style daemons avoid leaving
// orphaned grandchildren behind on stop.
//
// Go's SysProcAttr has no umask field (it is a process-wide attribute, not
// a per-Cmd one): prog.Umask, if set, must instead be applied with
// syscall.Umask and held across the fork in cmd.Start(), not just across
// buildCmd — spawn (manager.go) is responsible for that window and for
// restoring it once Start returns; buildCmd itself never touches the umask.
func buildCmd(prog policy.Program) (*exec.Cmd, *os.File, *os.File, error) {
	stdout, err := openLogFile(prog.StdoutPath)
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err := openLogFile(prog.StderrPath)
	if err != nil {
		closeIfNotNil(stdout)
		return nil, nil, nil, err
	}

	cmd := exec.Command(prog.Argv[0], prog.Argv[1:]...)
	cmd.Dir = prog.WorkingDir
	cmd.Env = env.Merge(prog.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}
	return cmd, stdout, stderr, nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func umaskBits(mode os.FileMode) int {
	return int(mode.Perm())
}
