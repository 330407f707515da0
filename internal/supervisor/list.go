package supervisor

import (
	"sort"

	"github.com/agent-command/agentd/internal/sessionstore"
)

// List implements spec.md §4.8.6. It reads every registered policy's
// on-disk session index, merges in live in-supervisor sessions not yet
// represented on disk (excluding those still on temp ids), sorts by
// timestamp descending, and truncates to limit.
func (m *Manager) List(filterDir string, limit int) ([]ListEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var all []ListEntry
	seen := make(map[string]bool)

	for name, policy := range m.policies {
		diskEntries, err := m.diskCache.get(name, policy.SessionIndexLocation())
		if err != nil {
			continue
		}
		for _, e := range diskEntries {
			if filterDir != "" && e.Project != filterDir {
				continue
			}
			seen[e.SessionID] = true
			entry := ListEntry{
				SessionID: e.SessionID,
				Project:   e.Project,
				Display:   e.Display,
				Timestamp: e.Timestamp.Unix(),
			}
			if sess, ok := m.store.Get(e.SessionID); ok {
				entry.IsActive = true
				entry.Status = string(sess.GetStatus())
			}
			all = append(all, entry)
		}
	}

	m.store.ForEach(func(sess *sessionstore.Session) {
		sess.Lock()
		id := sess.ID
		isTemp := sess.IsTempID
		status := sess.Status
		wd := sess.WorkingDirectory
		createdAt := sess.CreatedAt
		sess.Unlock()

		if isTemp || seen[id] {
			return
		}
		if filterDir != "" && wd != filterDir {
			return
		}
		all = append(all, ListEntry{
			SessionID: id,
			Project:   wd,
			Timestamp: createdAt.Unix(),
			IsActive:  true,
			Status:    string(status),
		})
	})

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
