package policy

import (
	"path/filepath"
	"syscall"
	"testing"
)

func TestBuildDefaults(t *testing.T) {
	p, err := Build(ProgramInput{Name: "worker", Cmd: "/bin/sleep 60"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.NumProcs != 1 {
		t.Fatalf("expected default numprocs 1, got %d", p.NumProcs)
	}
	if p.AutoRestart != RestartUnexpected {
		t.Fatalf("expected default autorestart unexpected, got %v", p.AutoRestart)
	}
	if p.StartRetries != DefaultStartRetries {
		t.Fatalf("expected default startretries %d, got %d", DefaultStartRetries, p.StartRetries)
	}
	if p.StopSignal != syscall.SIGTERM {
		t.Fatalf("expected default stopsignal TERM, got %v", p.StopSignal)
	}
	if !p.ExpectedExit(0) {
		t.Fatalf("expected default exitcodes to include 0")
	}
	if len(p.Argv) != 2 || p.Argv[0] != "/bin/sleep" || p.Argv[1] != "60" {
		t.Fatalf("unexpected argv: %#v", p.Argv)
	}
}

func TestBuildRejectsEmptyName(t *testing.T) {
	if _, err := Build(ProgramInput{Cmd: "/bin/true"}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestBuildRejectsBadIdentifier(t *testing.T) {
	if _, err := Build(ProgramInput{Name: "bad name!", Cmd: "/bin/true"}); err == nil {
		t.Fatalf("expected error for invalid identifier")
	}
}

func TestBuildRejectsEmptyCmd(t *testing.T) {
	if _, err := Build(ProgramInput{Name: "x"}); err == nil {
		t.Fatalf("expected error for empty cmd")
	}
}

func TestBuildRejectsUnknownRestartPolicy(t *testing.T) {
	_, err := Build(ProgramInput{Name: "x", Cmd: "/bin/true", AutoRestart: "sometimes"})
	if err == nil {
		t.Fatalf("expected error for invalid autorestart")
	}
}

func TestBuildRejectsUnknownSignal(t *testing.T) {
	_, err := Build(ProgramInput{Name: "x", Cmd: "/bin/true", StopSignal: "BOGUS"})
	if err == nil {
		t.Fatalf("expected error for invalid stop signal")
	}
}

func TestBuildVerifiesLogPathsOpenable(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "sub", "worker.stdout.log")
	p, err := Build(ProgramInput{Name: "worker", Cmd: "/bin/true", StdoutPath: out})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.StdoutPath != out {
		t.Fatalf("expected stdout path to be preserved")
	}
}

func TestBuildRejectsUnopenableWorkingDir(t *testing.T) {
	_, err := Build(ProgramInput{Name: "worker", Cmd: "/bin/true", WorkingDir: "/no/such/dir"})
	if err == nil {
		t.Fatalf("expected error for missing workingdir")
	}
}

func TestBuildExitCodesSet(t *testing.T) {
	p, err := Build(ProgramInput{Name: "x", Cmd: "/bin/true", ExitCodes: []int{0, 2, 3}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, c := range []int{0, 2, 3} {
		if !p.ExpectedExit(c) {
			t.Fatalf("expected code %d to be expected", c)
		}
	}
	if p.ExpectedExit(1) {
		t.Fatalf("code 1 should not be expected")
	}
}

func TestBuildEnvPerProgram(t *testing.T) {
	p, err := Build(ProgramInput{Name: "x", Cmd: "/bin/true", Env: map[string]string{"A": "1"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Env) != 1 || p.Env[0] != "A=1" {
		t.Fatalf("unexpected env: %#v", p.Env)
	}
}

func TestBuildNegativeStartRetriesRejected(t *testing.T) {
	neg := -1
	_, err := Build(ProgramInput{Name: "x", Cmd: "/bin/true", StartRetries: &neg})
	if err == nil {
		t.Fatalf("expected error for negative startretries")
	}
}
