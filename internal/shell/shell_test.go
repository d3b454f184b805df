package shell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbound/taskmaster/internal/supervisor"
)

type fakeCommander struct {
	startCalls, stopCalls, restartCalls []string
	statusEntries                      []supervisor.StatusEntry
	err                                 error
}

func (f *fakeCommander) Start(target string) ([]supervisor.Outcome, error) {
	f.startCalls = append(f.startCalls, target)
	if f.err != nil {
		return nil, f.err
	}
	return []supervisor.Outcome{{Instance: target + ":0", Result: supervisor.ResultStarted}}, nil
}

func (f *fakeCommander) Stop(target string) ([]supervisor.Outcome, error) {
	f.stopCalls = append(f.stopCalls, target)
	return []supervisor.Outcome{{Instance: target + ":0", Result: supervisor.ResultStopping}}, nil
}

func (f *fakeCommander) Restart(target string) ([]supervisor.Outcome, error) {
	f.restartCalls = append(f.restartCalls, target)
	return []supervisor.Outcome{{Instance: target + ":0", Result: supervisor.ResultStarted}}, nil
}

func (f *fakeCommander) Status() []supervisor.StatusEntry { return f.statusEntries }

func run(t *testing.T, mgr Commander, input string) string {
	t.Helper()
	var out bytes.Buffer
	sh := New(mgr, strings.NewReader(input), &out)
	sh.Run()
	return out.String()
}

func TestShellStartDispatches(t *testing.T) {
	mgr := &fakeCommander{}
	out := run(t, mgr, "start worker\nexit\n")
	require.Equal(t, []string{"worker"}, mgr.startCalls)
	require.Contains(t, out, "worker:0: started")
}

func TestShellStopDispatches(t *testing.T) {
	mgr := &fakeCommander{}
	run(t, mgr, "stop worker:1\nexit\n")
	require.Equal(t, []string{"worker:1"}, mgr.stopCalls)
}

func TestShellRestartDispatches(t *testing.T) {
	mgr := &fakeCommander{}
	run(t, mgr, "restart worker\nexit\n")
	require.Equal(t, []string{"worker"}, mgr.restartCalls)
}

func TestShellStatusPrintsJSON(t *testing.T) {
	mgr := &fakeCommander{statusEntries: []supervisor.StatusEntry{{Name: "worker:0", State: "RUNNING"}}}
	out := run(t, mgr, "status\nexit\n")
	require.Contains(t, out, "\"name\": \"worker:0\"")
	require.Contains(t, out, "RUNNING")
}

func TestShellUnknownCommand(t *testing.T) {
	mgr := &fakeCommander{}
	out := run(t, mgr, "frobnicate\nexit\n")
	require.Contains(t, out, "unknown command")
}

func TestShellMissingTargetArg(t *testing.T) {
	mgr := &fakeCommander{}
	out := run(t, mgr, "start\nexit\n")
	require.Contains(t, out, "usage: start")
	require.Empty(t, mgr.startCalls)
}

func TestShellExitsOnEOF(t *testing.T) {
	mgr := &fakeCommander{}
	var out bytes.Buffer
	sh := New(mgr, strings.NewReader(""), &out)
	sh.Run() // should return, not hang
}

func TestShellStartError(t *testing.T) {
	mgr := &fakeCommander{err: assertError{}}
	out := run(t, mgr, "start worker\nexit\n")
	require.Contains(t, out, "error:")
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
