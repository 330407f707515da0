package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/agent-command/agentd/internal/usage"
)

// accountUsageStore holds the most recent account-level usage poll per
// agent family, read by Status() and written by PollAccountUsage's
// background loop. Separate from sessionstore.Session because account
// usage is process-wide, not per-session.
type accountUsageStore struct {
	mu    sync.RWMutex
	byName map[string]*usage.AccountUsage
}

func newAccountUsageStore() *accountUsageStore {
	return &accountUsageStore{byName: make(map[string]*usage.AccountUsage)}
}

func (s *accountUsageStore) get(provider string) (*usage.AccountUsage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[provider]
	return u, ok
}

func (s *accountUsageStore) set(provider string, u *usage.AccountUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[provider] = u
}

// PollAccountUsage runs command on interval until ctx is cancelled,
// folding each successful poll into the provider's latest
// usage.AccountUsage. Grounded on the teacher's pollProviderUsage
// ticker loop in cmd/agentd/main.go, retargeted from a tmux-pane
// broadcast to an in-memory field Status() reads.
func (m *Manager) PollAccountUsage(ctx context.Context, provider, command string, interval time.Duration) {
	if command == "" || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	poll := func() {
		u, err := usage.PollCommand(ctx, provider, command)
		if err != nil {
			log.Printf("supervisor: account usage poll for %s failed: %v", provider, err)
			return
		}
		m.accountUsage.set(provider, u)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// AccountUsage returns the most recent poll result for provider, if
// any poll has completed yet.
func (m *Manager) AccountUsage(provider string) (*usage.AccountUsage, bool) {
	return m.accountUsage.get(provider)
}
