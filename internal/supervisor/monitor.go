package supervisor

import (
	"syscall"
	"time"

	"github.com/arcbound/taskmaster/internal/instance"
	"github.com/arcbound/taskmaster/internal/policy"
)

// DefaultTick is the Process Monitor's polling cadence (spec §4.4: "on a
// fixed, short cadence").
const DefaultTick = 300 * time.Millisecond

// Monitor is the Process Monitor (spec §4.4): a single background
// goroutine that, on every tick, non-blockingly reaps exited processes and
// drives the timer-based transitions (STARTING deadline, STOPPING
// escalation, BACKOFF retry).
type Monitor struct {
	mgr  *Manager
	tick time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor builds a Monitor for mgr. tick <= 0 uses DefaultTick.
func NewMonitor(mgr *Manager, tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Monitor{
		mgr:    mgr,
		tick:   tick,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run blocks, ticking until Stop is called. Intended to run on its own
// goroutine for the supervisor's lifetime.
func (mon *Monitor) Run() {
	defer close(mon.doneCh)
	ticker := time.NewTicker(mon.tick)
	defer ticker.Stop()
	for {
		select {
		case <-mon.stopCh:
			return
		case <-ticker.C:
			mon.tickOnce()
		}
	}
}

// Stop signals Run to return. Safe to call once.
func (mon *Monitor) Stop() { close(mon.stopCh) }

// Wait blocks until Run has returned.
func (mon *Monitor) Wait() { <-mon.doneCh }

func (mon *Monitor) tickOnce() {
	mon.mgr.mu.Lock()
	insts := make([]*instance.Instance, 0, len(mon.mgr.instances))
	for _, inst := range mon.mgr.instances {
		insts = append(insts, inst)
	}
	mon.mgr.mu.Unlock()

	now := time.Now()
	for _, inst := range insts {
		mon.observe(inst, now)
	}
}

func (mon *Monitor) observe(inst *instance.Instance, now time.Time) {
	mon.mgr.mu.Lock()
	state := inst.State
	waitCh := inst.WaitChan()
	mon.mgr.mu.Unlock()

	if waitCh != nil {
		select {
		case err := <-waitCh:
			mon.handleExit(inst, err, now)
			return
		default:
		}
	}

	switch state {
	case instance.Starting:
		mon.mgr.mu.Lock()
		if inst.State == instance.Starting && !now.Before(inst.SuccessfulStartDeadline) {
			from := inst.State
			inst.State = instance.Running
			mon.mgr.recordTransitionLocked(inst, from)
			mon.mgr.logger.Info("instance running", "instance", inst.Name, "pid", inst.PID)
		}
		mon.mgr.mu.Unlock()

	case instance.Stopping:
		mon.mgr.mu.Lock()
		escalate := inst.State == instance.Stopping && !now.Before(inst.StopDeadline)
		pid := inst.PID
		mon.mgr.mu.Unlock()
		if escalate && pid > 0 {
			if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
				mon.mgr.logger.Warn("SIGKILL delivery failed", "instance", inst.Name, "err", err)
			} else {
				mon.mgr.logger.Warn("escalating to SIGKILL after stoptime", "instance", inst.Name, "pid", pid)
			}
		}

	case instance.Backoff:
		mon.mgr.mu.Lock()
		prog := mon.mgr.programs[inst.Program]
		stillBackoff := inst.State == instance.Backoff
		mon.mgr.mu.Unlock()
		if stillBackoff {
			mon.mgr.spawn(inst, prog)
		}
	}
}

// handleExit reaps a dead process's exit and decides the next state
// (transitions 3, 6, 8, 9 of spec §4.2).
func (mon *Monitor) handleExit(inst *instance.Instance, err error, now time.Time) {
	code := instance.ExitCodeFromWaitErr(err)

	mon.mgr.mu.Lock()
	prevState := inst.State
	prog := mon.mgr.programs[inst.Program]
	inst.MarkExited(code, now)
	mon.mgr.metrics.ObserveStop(inst.Program)

	var respawn bool
	switch prevState {
	case instance.Starting:
		if now.Before(inst.SuccessfulStartDeadline) && !prog.ExpectedExit(code) {
			// died before proving itself up with an unexpected code: a start
			// failure (transition 3).
			inst.RetriesRemaining--
			if inst.RetriesRemaining > 0 {
				inst.State = instance.Backoff
				mon.mgr.logger.Warn("start failed, will retry", "instance", inst.Name, "exit_code", code, "retries_remaining", inst.RetriesRemaining)
			} else {
				inst.State = instance.Fatal
				mon.mgr.logger.Error("start retries exhausted", "instance", inst.Name, "exit_code", code)
			}
		} else {
			// either past the deadline, or an expected-code exit even before
			// it: the autorestart policy decides, not the retry budget (spec
			// §8 scenario 1 vs scenario 2).
			respawn = mon.decideRunningExitLocked(inst, prog, code)
		}
	case instance.Running:
		respawn = mon.decideRunningExitLocked(inst, prog, code)
	case instance.Stopping:
		inst.State = instance.Stopped
		mon.mgr.logger.Info("instance stopped", "instance", inst.Name, "exit_code", code)
	default:
		mon.mgr.logger.Error("exit observed in unexpected state", "instance", inst.Name, "state", prevState.String())
	}
	mon.mgr.recordTransitionLocked(inst, prevState)
	mon.mgr.mu.Unlock()

	if respawn {
		mon.mgr.metrics.ObserveRestart(inst.Program)
		mon.mgr.spawn(inst, prog)
	}
}

// decideRunningExitLocked applies the autorestart policy (spec §3, §4.2
// transition 6) to an Instance whose process just exited from RUNNING, or
// from STARTING with an expected code or past its deadline. Must be called with the registry lock held; it sets inst.State and
// returns whether the caller should respawn once unlocked.
func (mon *Monitor) decideRunningExitLocked(inst *instance.Instance, prog policy.Program, code int) bool {
	switch prog.AutoRestart {
	case policy.RestartAlways:
		inst.RetriesRemaining = prog.StartRetries
		inst.State = instance.Backoff // momentary waypoint; spawn() below moves it to STARTING
		mon.mgr.logger.Info("auto-restarting (always)", "instance", inst.Name, "exit_code", code)
		return true
	case policy.RestartUnexpected:
		if prog.ExpectedExit(code) {
			inst.State = instance.Exited
			mon.mgr.logger.Info("instance exited", "instance", inst.Name, "exit_code", code)
			return false
		}
		inst.RetriesRemaining = prog.StartRetries
		inst.State = instance.Backoff
		mon.mgr.logger.Info("auto-restarting (unexpected exit)", "instance", inst.Name, "exit_code", code)
		return true
	default: // RestartNever
		inst.State = instance.Exited
		mon.mgr.logger.Info("instance exited", "instance", inst.Name, "exit_code", code)
		return false
	}
}
