// Package sampler implements the out-of-process sampler manager (spec
// section 4.3): one manager per vendor tool identity, owning subprocess
// lifecycle, line-oriented parsing into Frames, and a bounded Store of
// recent frames. It is the hardest subsystem in the design because it has
// to get concurrency, panic safety, and process-group teardown right with
// nothing to fall back on — there is no higher layer that will clean up a
// leaked subprocess.
package sampler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/model"
)

// State is the sampler lifecycle state machine (spec section 4.3):
//
//	Uninit -> Starting -> Running -> (Stopping -> Stopped) | Failed
//
// Failed retries from the top on the next ensure_running call once the
// backoff window has elapsed.
type State int

const (
	Uninit State = iota
	Starting
	Running
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// startGracePeriod bounds how long a spawn has to produce its first
	// parsed frame before it is considered failed.
	startGracePeriod = 10 * time.Second
	// baseBackoff and maxBackoff govern the retry delay after a Failed
	// transition (spec: "base 1s, cap 30s").
	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second
	// stopGracePeriod is how long Stop waits for a graceful exit before
	// escalating to a forceful kill.
	stopGracePeriod = 3 * time.Second
)

// LineParser turns one line of subprocess stdout into frame fields. ok is
// false when the line is not a complete frame (e.g. a blank separator
// line in a multi-line record format) and should be accumulated rather
// than emitted.
type LineParser func(line string) (fields map[string]string, ok bool, err error)

// CommandFactory builds the *exec.Cmd to run. Called fresh on every spawn
// attempt since *exec.Cmd is single-use.
type CommandFactory func(ctx context.Context) (*exec.Cmd, error)

// Manager owns one vendor tool's subprocess lifecycle and output Store. It
// is meant to be constructed once per tool identity and shared (the
// "process-wide singleton accessed through an initialization guard"
// described in spec section 4.3) — callers should obtain it via a
// Registry (see registry.go) rather than constructing duplicates.
type Manager struct {
	identity string
	build    CommandFactory
	parse    LineParser
	store    *Store
	logger   *zap.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	cmd        *exec.Cmd
	stdinPipe  io.WriteCloser
	lastErr    error
	failCount  int
	lastFailed time.Time
	ready      bool
}

// NewManager creates a Manager for one tool identity. ringCapacity <= 0
// uses DefaultRingCapacity.
func NewManager(identity string, build CommandFactory, parse LineParser, ringCapacity int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		identity: identity,
		build:    build,
		parse:    parse,
		store:    NewStore(ringCapacity),
		logger:   logger,
		state:    Uninit,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Identity returns the tool identity this manager owns.
func (m *Manager) Identity() string { return m.identity }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Latest returns the most recently parsed frame. Implements
// contracts.SamplerBackend.
func (m *Manager) Latest() (model.Frame, bool) {
	return m.store.Latest()
}

// History returns up to n recent frames, oldest first. Implements
// contracts.SamplerBackend.
func (m *Manager) History(n int) []model.Frame {
	return m.store.History(n)
}

// Start implements contracts.SamplerBackend by delegating to
// EnsureRunning.
func (m *Manager) Start(ctx context.Context) error { return m.EnsureRunning(ctx) }

// EnsureRunning is the single entry point callers use before reading from
// the store. Concurrent first-callers rendezvous on the same spawn: only
// one subprocess is ever launched per Manager, satisfying the testable
// property "at most one per tool identity until the next explicit stop()".
//
// Callers arriving while a spawn is in flight (Starting) wait until it
// resolves. The spawning caller waits up to startGracePeriod for a first
// frame and returns a contracts.Warming error if none arrives in time or
// ctx ends first. It returns a wrapped error if the tool is Failed and
// still within its backoff window, and nil once Running.
func (m *Manager) EnsureRunning(ctx context.Context) error {
	m.mu.Lock()
	for {
		switch m.state {
		case Running:
			m.mu.Unlock()
			return nil
		case Starting:
			m.cond.Wait() // released while waiting; re-checks state on wake
			continue
		case Stopping:
			m.mu.Unlock()
			return contracts.NewReaderError(contracts.KindDeviceAccess, m.identity, fmt.Errorf("sampler is stopping"))
		case Failed:
			if time.Since(m.lastFailed) < m.backoffDuration() {
				err := m.lastErr
				m.mu.Unlock()
				return contracts.NewReaderError(contracts.KindDeviceAccess, m.identity, fmt.Errorf("backing off after failure: %w", err))
			}
			// Backoff elapsed: fall through to (re)spawn below.
		case Uninit, Stopped:
			// fall through to spawn below
		}
		break
	}
	m.state = Starting
	m.ready = false
	m.cond.Broadcast()
	m.mu.Unlock()

	if err := m.spawn(ctx); err != nil {
		m.transitionFailed(err)
		return contracts.NewReaderError(contracts.KindDeviceAccess, m.identity, err)
	}

	// Give the subprocess the grace period to produce a first frame.
	deadline := time.Now().Add(startGracePeriod)
	for {
		if m.store.Len() > 0 {
			m.transitionRunning()
			return nil
		}
		if time.Now().After(deadline) {
			err := fmt.Errorf("no frame parsed within %s", startGracePeriod)
			_ = m.Stop(context.Background())
			m.transitionFailed(err)
			return contracts.NewReaderError(contracts.KindWarming, m.identity, err)
		}
		select {
		case <-ctx.Done():
			return contracts.NewReaderError(contracts.KindWarming, m.identity, ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (m *Manager) backoffDuration() time.Duration {
	shift := m.failCount - 1
	if shift < 0 {
		shift = 0
	}
	d := baseBackoff << shift
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}

func (m *Manager) transitionRunning() {
	m.mu.Lock()
	m.state = Running
	m.ready = true
	m.failCount = 0
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *Manager) transitionFailed(err error) {
	m.mu.Lock()
	m.state = Failed
	m.lastErr = err
	m.lastFailed = time.Now()
	m.failCount++
	m.cond.Broadcast()
	m.mu.Unlock()
	m.logger.Warn("sampler failed", zap.String("tool", m.identity), zap.Error(err))
}

// IsAlive reports whether the subprocess is currently believed to be
// running (Running state and the process has not exited).
func (m *Manager) IsAlive() bool {
	return m.State() == Running
}

// spawn builds and starts the subprocess, wires its stdout through a line
// scanner into the Store, and launches the detached watchdog that kills
// the process group if this manager's own process dies without running
// Stop.
func (m *Manager) spawn(ctx context.Context) error {
	cmd, err := m.build(ctx)
	if err != nil {
		return fmt.Errorf("building command: %w", err)
	}
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.identity, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	// Held open for the subprocess's lifetime; closing it (on Stop, or
	// implicitly when this process dies) is the stdin-EOF shutdown signal
	// described in spec 4.3 for tools that watch for it.
	m.stdinPipe = stdin
	m.mu.Unlock()

	go m.readLoop(stdout)
	go m.spawnWatchdog(cmd.Process.Pid)

	go func() {
		_ = cmd.Wait()
		m.mu.Lock()
		wasRunning := m.state == Running
		m.mu.Unlock()
		if wasRunning {
			m.transitionFailed(fmt.Errorf("subprocess exited unexpectedly"))
		}
	}()

	return nil
}

// spawnWatchdog launches a detached helper invocation of this same binary
// to babysit targetPID; see watchdog.go for why this must be a separate
// process rather than a goroutine.
func (m *Manager) spawnWatchdog(targetPID int) {
	exe, err := os.Executable()
	if err != nil {
		m.logger.Debug("watchdog not started: cannot resolve executable path", zap.Error(err))
		return
	}
	wd := exec.Command(exe, "__sampler-watchdog",
		fmt.Sprintf("%d", os.Getpid()), fmt.Sprintf("%d", targetPID))
	setProcessGroup(wd)
	if err := wd.Start(); err != nil {
		m.logger.Debug("watchdog not started", zap.Error(err))
		return
	}
	go func() { _ = wd.Process.Release() }()
}

func (m *Manager) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields, ok, err := m.parse(scanner.Text())
		if err != nil {
			m.logger.Debug("sampler parse error", zap.String("tool", m.identity), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		m.store.Push(fields)
	}
}

// Stop transitions Running -> Stopping -> Stopped, signaling the process
// group to terminate and escalating to a forceful kill if it does not
// exit within stopGracePeriod.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Running && m.state != Starting {
		m.mu.Unlock()
		return nil
	}
	m.state = Stopping
	cmd := m.cmd
	stdin := m.stdinPipe
	m.cond.Broadcast()
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		m.finishStop()
		return nil
	}

	if stdin != nil {
		_ = stdin.Close()
	}
	_ = terminateGroup(cmd.Process.Pid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		_ = terminateGroup(cmd.Process.Pid, syscall.SIGKILL)
		<-done
	case <-ctx.Done():
		_ = terminateGroup(cmd.Process.Pid, syscall.SIGKILL)
	}

	m.finishStop()
	return nil
}

func (m *Manager) finishStop() {
	m.mu.Lock()
	m.state = Stopped
	m.cmd = nil
	m.cond.Broadcast()
	m.mu.Unlock()
}
