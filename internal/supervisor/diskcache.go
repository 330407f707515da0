package supervisor

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agent-command/agentd/internal/sessionstore"
	"github.com/agent-command/agentd/internal/spawnpolicy"
)

// diskIndexCache holds one policy's most recent ListOnDisk read, kept
// fresh by a fsnotify watch on the index path rather than a TTL:
// list() is called far more often than an agent CLI writes a new row,
// so re-walking a date-partitioned tree on every call wastes work the
// teacher's GitStatusCache avoided with a TTL instead. A write to the
// watched path invalidates the cache; the next List() re-reads it.
type diskIndexCache struct {
	mu      sync.RWMutex
	entries map[string][]sessionstore.DiskEntry // policy name -> entries
	stale   map[string]bool
	watcher *fsnotify.Watcher
}

// newDiskIndexCache starts a watcher on every policy's index location.
// A policy whose path doesn't exist yet (no sessions written so far)
// is watched on its parent directory so a later creation still
// invalidates the cache; a watcher that fails to start at all degrades
// to always-stale, i.e. every List() call re-reads disk.
func newDiskIndexCache(policies map[string]spawnpolicy.Policy) *diskIndexCache {
	c := &diskIndexCache{
		entries: make(map[string][]sessionstore.DiskEntry),
		stale:   make(map[string]bool),
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		for name := range policies {
			c.stale[name] = true
		}
		return c
	}
	c.watcher = w

	pathToPolicy := make(map[string]string)
	for name, p := range policies {
		loc := p.SessionIndexLocation()
		watchPath := loc.Path
		if loc.Kind == spawnpolicy.IndexJSONLFile {
			watchPath = parentDir(loc.Path)
		}
		if watchPath == "" {
			continue
		}
		if err := w.Add(watchPath); err == nil {
			pathToPolicy[watchPath] = name
		}
		c.stale[name] = true
	}

	go c.watchLoop(pathToPolicy)
	return c
}

func (c *diskIndexCache) watchLoop(pathToPolicy map[string]string) {
	for event := range c.watcher.Events {
		c.mu.Lock()
		if name, ok := pathToPolicy[event.Name]; ok {
			c.stale[name] = true
		} else {
			// a date-partitioned tree's writes land under subdirectories
			// the watcher isn't registered on directly; invalidate every
			// policy rather than trying to resolve the ancestor chain.
			for name := range c.stale {
				c.stale[name] = true
			}
		}
		c.mu.Unlock()
	}
}

// get returns loc's entries, re-reading from disk only if no cached
// read exists yet or a watched write has invalidated it.
func (c *diskIndexCache) get(name string, loc spawnpolicy.IndexLocation) ([]sessionstore.DiskEntry, error) {
	c.mu.RLock()
	entries, cached := c.entries[name]
	stale := c.stale[name]
	c.mu.RUnlock()

	if cached && !stale {
		return entries, nil
	}

	fresh, err := sessionstore.ListOnDisk(loc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = fresh
	c.stale[name] = false
	c.mu.Unlock()

	return fresh, nil
}

func (c *diskIndexCache) close() {
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}
