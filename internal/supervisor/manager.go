// Package supervisor implements the Job Manager (spec §4.3) and the
// Process Monitor (spec §4.4): the only two components that ever mutate
// an Instance. Grounded on the teacher's internal/manager package (the
// single registry + lock owning every process, a background goroutine
// that waits out each child and decides what happens next), generalized
// from the teacher's flat process registry into the Policy Model's
// program/index addressing (spec §3 "name:index").
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arcbound/taskmaster/internal/instance"
	"github.com/arcbound/taskmaster/internal/metrics"
	"github.com/arcbound/taskmaster/internal/policy"
)

// Manager is the Job Manager: it owns the Instance registry and the
// single lock that serializes every mutation of it (spec §5). Expensive
// operations -- spawning, signaling, opening log files -- are performed
// outside that lock, against an Instance pinned in the registry by
// pointer, and committed back under the lock.
type Manager struct {
	mu        sync.Mutex
	umaskMu   sync.Mutex // serializes the brief umask-sensitive spawn window
	programs  map[string]policy.Program
	instances map[string]*instance.Instance
	order     []string // stable "program:index" order for Status()

	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewManager builds a Manager with one STOPPED Instance per configured
// copy of every program (spec §3 "numprocs").
func NewManager(programs []policy.Program, logger *slog.Logger) *Manager {
	m := &Manager{
		programs:  make(map[string]policy.Program, len(programs)),
		instances: make(map[string]*instance.Instance),
		logger:    logger,
	}
	for _, p := range programs {
		m.programs[p.Name] = p
		for idx := 0; idx < p.NumProcs; idx++ {
			inst := instance.New(p.Name, idx, p.StartRetries)
			m.instances[inst.Name] = inst
			m.order = append(m.order, inst.Name)
		}
	}
	sort.Strings(m.order)
	return m
}

// AutostartAll issues Start for every program whose Policy Model marks it
// autostart: true (spec §4.2 transition 1's trigger at supervisor boot).
func (m *Manager) AutostartAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.programs))
	for name, p := range m.programs {
		if p.Autostart {
			names = append(names, name)
		}
	}
	m.mu.Unlock()
	sort.Strings(names)
	for _, name := range names {
		if _, err := m.Start(name); err != nil {
			m.logger.Error("autostart failed", "program", name, "err", err)
		}
	}
}

// resolve maps a target string ("name" or "name:index") to the matching
// Instance pointers, in stable order.
func (m *Manager) resolve(target string) ([]*instance.Instance, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("target must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.Contains(target, ":") {
		inst, ok := m.instances[target]
		if !ok {
			return nil, fmt.Errorf("unknown instance %q", target)
		}
		return []*instance.Instance{inst}, nil
	}

	if _, ok := m.programs[target]; !ok {
		return nil, fmt.Errorf("unknown program %q", target)
	}
	var out []*instance.Instance
	for _, key := range m.order {
		if inst := m.instances[key]; inst.Program == target {
			out = append(out, inst)
		}
	}
	return out, nil
}

// Start issues a start against every Instance matched by target. Each
// Instance's outcome is independent: a FATAL instance among several does
// not block the others from starting (spec §4.3, DESIGN.md Open Question
// resolution).
func (m *Manager) Start(target string) ([]Outcome, error) {
	insts, err := m.resolve(target)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(insts))
	for _, inst := range insts {
		outcomes = append(outcomes, m.startOne(inst))
	}
	return outcomes, nil
}

func (m *Manager) startOne(inst *instance.Instance) Outcome {
	m.mu.Lock()
	switch inst.State {
	case instance.Stopping:
		m.mu.Unlock()
		return Outcome{Instance: inst.Name, Result: ResultBusy}
	case instance.Starting, instance.Running:
		m.mu.Unlock()
		return Outcome{Instance: inst.Name, Result: ResultAlreadyRunning}
	}
	prog := m.programs[inst.Program]
	inst.RetriesRemaining = prog.StartRetries
	m.mu.Unlock()

	return m.spawn(inst, prog)
}

// spawn performs the fork/exec and log-file opens outside the lock, then
// commits the result (transitions 1 and 4 of spec §4.2).
func (m *Manager) spawn(inst *instance.Instance, prog policy.Program) Outcome {
	m.umaskMu.Lock()
	var restore *int
	if prog.Umask != nil {
		old := syscall.Umask(umaskBits(*prog.Umask))
		restore = &old
	}
	cmd, stdout, stderr, err := buildCmd(prog)
	if err == nil {
		err = cmd.Start()
	}
	if restore != nil {
		syscall.Umask(*restore)
	}
	m.umaskMu.Unlock()

	if err != nil {
		closeIfNotNil(stdout)
		closeIfNotNil(stderr)
		m.mu.Lock()
		from := inst.State
		inst.State = instance.Fatal
		m.recordTransitionLocked(inst, from)
		m.mu.Unlock()
		m.logger.Error("spawn failed", "instance", inst.Name, "err", err)
		return Outcome{Instance: inst.Name, Result: ResultFatalUnreachable, Err: err}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	now := time.Now()
	m.mu.Lock()
	from := inst.State
	inst.SetStarted(cmd, waitCh, stdout, stderr, now, prog.StartTime)
	m.metrics.ObserveStart(inst.Program)
	m.recordTransitionLocked(inst, from)
	m.mu.Unlock()
	m.logger.Info("instance starting", "instance", inst.Name, "pid", cmd.Process.Pid)
	return Outcome{Instance: inst.Name, Result: ResultStarted}
}

func (m *Manager) recordTransitionLocked(inst *instance.Instance, from instance.State) {
	if from == inst.State {
		return
	}
	m.metrics.RecordTransition(inst.Program, from.String(), inst.State.String())
	m.metrics.SetCurrentState(inst.Name, from.String(), false)
	m.metrics.SetCurrentState(inst.Name, inst.State.String(), true)
}

// Stop issues a stop against every Instance matched by target. It sends
// the configured stop signal and returns immediately; it does not wait
// for the process to actually exit (spec §4.3).
func (m *Manager) Stop(target string) ([]Outcome, error) {
	insts, err := m.resolve(target)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(insts))
	for _, inst := range insts {
		outcomes = append(outcomes, m.stopOne(inst))
	}
	return outcomes, nil
}

func (m *Manager) stopOne(inst *instance.Instance) Outcome {
	m.mu.Lock()
	switch inst.State {
	case instance.Stopped, instance.Exited, instance.Fatal, instance.Backoff:
		m.mu.Unlock()
		return Outcome{Instance: inst.Name, Result: ResultAlreadyStopped}
	case instance.Stopping:
		m.mu.Unlock()
		return Outcome{Instance: inst.Name, Result: ResultStopping}
	}
	prog := m.programs[inst.Program]
	pid := inst.PID
	from := inst.State
	inst.State = instance.Stopping
	inst.StopDeadline = time.Now().Add(prog.StopTime)
	m.recordTransitionLocked(inst, from)
	m.mu.Unlock()

	if pid > 0 {
		if err := syscall.Kill(-pid, prog.StopSignal); err != nil && err != syscall.ESRCH {
			m.logger.Warn("signal delivery failed", "instance", inst.Name, "err", err)
		}
	}
	m.logger.Info("instance stopping", "instance", inst.Name, "signal", prog.StopSignal)
	return Outcome{Instance: inst.Name, Result: ResultStopping}
}

// Restart stops target and, once it reaches STOPPED, starts it again. The
// call blocks until the start has been issued (spec §4.3).
func (m *Manager) Restart(target string) ([]Outcome, error) {
	insts, err := m.resolve(target)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(insts))
	for _, inst := range insts {
		outcomes = append(outcomes, m.restartOne(inst))
	}
	return outcomes, nil
}

func (m *Manager) restartOne(inst *instance.Instance) Outcome {
	m.mu.Lock()
	needsStop := inst.State == instance.Starting || inst.State == instance.Running || inst.State == instance.Stopping
	m.mu.Unlock()

	if needsStop {
		m.stopOne(inst)
		m.waitForStopped(inst)
	}
	return m.startOne(inst)
}

func (m *Manager) waitForStopped(inst *instance.Instance) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		s := inst.State
		m.mu.Unlock()
		if s == instance.Stopped || s == instance.Exited || s == instance.Fatal {
			return
		}
	}
}

// Status returns a point-in-time snapshot of every Instance (spec §4.5,
// §6).
func (m *Manager) Status() []StatusEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]StatusEntry, 0, len(m.order))
	for _, key := range m.order {
		inst := m.instances[key]
		uptime := 0.0
		if inst.State == instance.Running {
			uptime = now.Sub(inst.StartTime).Seconds()
		}
		out = append(out, StatusEntry{
			Name:             inst.Name,
			State:            inst.State.String(),
			PID:              inst.PID,
			Uptime:           uptime,
			LastExitCode:     inst.LastExitCode,
			RetriesRemaining: inst.RetriesRemaining,
		})
	}
	return out
}

// Shutdown stops every non-terminal Instance and waits for them all to
// reach a terminal state or for ctx to be done (spec §4.3, §9).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	var targets []*instance.Instance
	var maxWait time.Duration
	for _, key := range m.order {
		inst := m.instances[key]
		if inst.State != instance.Stopped && inst.State != instance.Exited && inst.State != instance.Fatal {
			targets = append(targets, inst)
		}
		if w := m.programs[inst.Program].StopTime; w > maxWait {
			maxWait = w
		}
	}
	m.mu.Unlock()

	for _, inst := range targets {
		m.stopOne(inst)
	}
	if len(targets) == 0 {
		return nil
	}

	deadline := time.NewTimer(maxWait + time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.allTerminal(targets) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("shutdown: timed out waiting for %d instance(s) to stop", len(targets))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) allTerminal(insts []*instance.Instance) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range insts {
		if inst.State != instance.Stopped && inst.State != instance.Exited && inst.State != instance.Fatal {
			return false
		}
	}
	return true
}

func closeIfNotNil(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
