// Package supervisor is the composition root (C8): it wires C2-C7
// together into the six tool operations, owns the per-session state
// machine, and runs the approval callback loop. Grounded on the
// teacher's Agent struct in cmd/agentd/main.go — same
// dispatch-by-string-tag operation shape, same per-session mutation-
// under-lock discipline, retargeted from "one tmux pane per session" to
// "one spawned process per session."
package supervisor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agent-command/agentd/internal/approval"
	"github.com/agent-command/agentd/internal/config"
	"github.com/agent-command/agentd/internal/events"
	"github.com/agent-command/agentd/internal/metrics"
	"github.com/agent-command/agentd/internal/questions"
	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/spawnpolicy"
	"github.com/agent-command/agentd/internal/spawnproc"
)

const (
	startGrace       = 10 * time.Second
	startPollEvery   = 50 * time.Millisecond
	sayModeChangeMax = 5 * time.Second
	interruptGrace   = 5 * time.Second
	shutdownGrace    = 8 * time.Second
)

// Manager is the Session Manager. One Manager owns every session a
// supervisor process tracks.
type Manager struct {
	env           config.EnvConfig
	policies      map[string]spawnpolicy.Policy
	defaultPolicy string

	store    *sessionstore.Store
	registry *questions.Registry[approval.Response]
	bridge   *spawnproc.ApprovalBridge

	// callbackEndpoint is the approval bridge's /permission URL, filled
	// in once the bridge is started; empty disables callback-bridge
	// wiring (no approval-endpoint flag is rendered, so the agent CLI's
	// own default permission handling applies).
	callbackEndpoint string

	// metrics is nil unless BindMetrics is called; every recording call
	// below tolerates a nil Recorder.
	metrics *metrics.Recorder

	diskCache    *diskIndexCache
	accountUsage *accountUsageStore
}

// BindMetrics wires a metrics.Recorder; every subsequent spawn, exit,
// and approval resolution is recorded against it.
func (m *Manager) BindMetrics(r *metrics.Recorder) {
	m.metrics = r
}

// New constructs a Manager. bridge may be nil if no policy in policies
// uses ApprovalCallbackBridge.
func New(env config.EnvConfig, policies map[string]spawnpolicy.Policy, defaultPolicy string, bridge *spawnproc.ApprovalBridge) *Manager {
	m := &Manager{
		env:           env,
		policies:      policies,
		defaultPolicy: defaultPolicy,
		store:         sessionstore.New(env.MaxSessions),
		registry:      questions.New[approval.Response](env.ApprovalTimeout()),
		bridge:        bridge,
		diskCache:     newDiskIndexCache(policies),
		accountUsage:  newAccountUsageStore(),
	}
	if bridge != nil {
		bridge.SetHandler(m.handleApprovalCallback)
	}
	return m
}

// BindCallbackEndpoint records the bridge's externally reachable
// /permission URL, used by callback-bridge policies when rendering
// argv.
func (m *Manager) BindCallbackEndpoint(endpoint string) {
	m.callbackEndpoint = endpoint
}

// Shutdown signals every live process with SIGTERM, awaits reasonable
// draining (up to shutdownGrace, in parallel across sessions), escalates
// stragglers to SIGKILL, cancels every pending-question timer, and
// closes the approval bridge listener, per spec.md §5.
func (m *Manager) Shutdown() {
	m.registry.Cleanup()

	var procs []sessionstore.Process
	m.store.ForEach(func(sess *sessionstore.Session) {
		sess.Lock()
		proc := sess.Process
		sess.Unlock()
		if proc != nil {
			procs = append(procs, proc)
		}
	})

	var wg sync.WaitGroup
	for _, proc := range procs {
		wg.Add(1)
		go func(proc sessionstore.Process) {
			defer wg.Done()
			drainProcess(proc)
		}(proc)
	}
	wg.Wait()

	if m.bridge != nil {
		_ = m.bridge.Close()
	}
	m.diskCache.close()
}

// drainProcess sends SIGTERM and waits up to shutdownGrace for the
// process to exit on its own, escalating to SIGKILL only if it is
// still alive once the grace period elapses.
func drainProcess(proc sessionstore.Process) {
	if err := proc.SignalTerminate(); err != nil {
		_ = proc.Kill()
		return
	}
	select {
	case <-proc.Done():
	case <-time.After(shutdownGrace):
		select {
		case <-proc.Done():
		default:
			_ = proc.Kill()
		}
	}
}

func (m *Manager) resolvePolicy(name string) (spawnpolicy.Policy, error) {
	if name == "" {
		name = m.defaultPolicy
	}
	p, ok := m.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent family %q", name)
	}
	return p, nil
}

// spawnFor launches a process for sess using its stored policy and
// params, wiring C1/exit/approval sinks back into the manager.
func (m *Manager) spawnFor(sess *sessionstore.Session, policy spawnpolicy.Policy, params spawnpolicy.SpawnParams) (*spawnproc.Process, error) {
	if policy.ApprovalMode() == spawnpolicy.ApprovalCallbackBridge && !params.BypassApprovals {
		params.CallbackEndpoint = m.callbackEndpoint
	}
	argv := policy.RenderArgv(params)

	sinks := spawnproc.Sinks{
		OnEvent: func(e events.Event) { m.handleEvent(sess, e) },
		OnDecodeError: func(line string, err error) {
			// logged and skipped — malformed lines never fail an operation.
			log.Printf("supervisor: skipping malformed event line: %v", err)
		},
		OnExit: func(r spawnproc.ExitResult) { m.handleExit(sess, r) },
	}
	if policy.ApprovalMode() == spawnpolicy.ApprovalInlineIO {
		sinks.OnApproval = func(promptLine string) approval.Response {
			return m.handleApprovalForSession(sess, approval.Request{PromptText: promptLine})
		}
	}

	proc, err := spawnproc.Spawn(policy.ExecPath(), argv, params.WorkingDirectory, sinks)
	if err != nil {
		return nil, err
	}
	m.metrics.IncActiveProcesses()
	return proc, nil
}
