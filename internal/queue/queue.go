// Package queue is the durable outbound queue backing
// toolsurface.Client's Send/ResendQueued: every tool-operation result
// pushed to the control plane over the websocket is also appended here
// first, so a dropped connection never loses a result — ResendQueued
// replays whatever the control plane hasn't acked yet after reconnect.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ToolResult is one queued result envelope: a tool operation's name
// (start/say/status/...), its JSON result payload, and the outbound
// seq toolsurface.Client assigned it, which the control plane's
// ack_seq eventually clears via AckUpto.
type ToolResult struct {
	Seq     int64           `json:"seq"`
	Op      string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Queue is the on-disk JSONL backlog of unacked ToolResults for one
// toolsurface.Client, durable across daemon restarts.
type Queue struct {
	path        string
	maxSize     int
	results     []ToolResult
	mu          sync.Mutex
	append      *os.File
	lastCompact time.Time
}

// NewQueue opens (creating if absent) the outbound-result backlog
// under stateDir, replaying whatever toolsurface.Client left unacked
// from a previous run.
func NewQueue(stateDir string, maxSize int) (*Queue, error) {
	path := filepath.Join(stateDir, "outbound-queue.jsonl")

	// Ensure directory exists
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	q := &Queue{
		path:    path,
		maxSize: maxSize,
	}

	// Load existing results
	if err := q.load(); err != nil {
		return nil, err
	}

	if err := q.openAppend(); err != nil {
		return nil, err
	}

	return q, nil
}

func (q *Queue) load() error {
	file, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open queue file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		var res ToolResult
		if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
			continue // Skip invalid lines
		}
		q.results = append(q.results, res)
	}

	return scanner.Err()
}

func (q *Queue) openAppend() error {
	if q.append != nil {
		return nil
	}
	file, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open queue file for append: %w", err)
	}
	q.append = file
	return nil
}

func (q *Queue) appendResult(res ToolResult) error {
	if err := q.openAppend(); err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if _, err := q.append.Write(data); err != nil {
		return err
	}
	if _, err := q.append.WriteString("\n"); err != nil {
		return err
	}
	return nil
}

func (q *Queue) compact() error {
	tmpPath := q.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create queue file: %w", err)
	}
	for _, res := range q.results {
		data, err := json.Marshal(res)
		if err != nil {
			continue
		}
		if _, err := file.Write(data); err != nil {
			file.Close()
			return err
		}
		if _, err := file.WriteString("\n"); err != nil {
			file.Close()
			return err
		}
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		return err
	}
	if q.append != nil {
		_ = q.append.Close()
		q.append = nil
	}
	q.lastCompact = time.Now()
	return q.openAppend()
}

func (q *Queue) maybeCompact(removed int) error {
	if removed == 0 {
		return nil
	}
	// Avoid compacting too frequently
	if time.Since(q.lastCompact) < 30*time.Second && removed < 100 {
		return nil
	}
	info, err := os.Stat(q.path)
	if err == nil {
		// Skip compaction for small files unless we removed a lot
		if info.Size() < 5*1024*1024 && removed < 100 {
			return nil
		}
	}
	return q.compact()
}

func (q *Queue) pruneLocked(seq int64) int {
	if len(q.results) == 0 {
		return 0
	}
	removed := 0
	kept := make([]ToolResult, 0, len(q.results))
	for _, res := range q.results {
		if res.Seq > seq {
			kept = append(kept, res)
		} else {
			removed++
		}
	}
	q.results = kept
	return removed
}

// Push appends res to the backlog, evicting the oldest unacked result
// once maxSize is reached (the control plane is assumed unreachable
// long enough that the oldest retained result is no longer useful).
func (q *Queue) Push(res ToolResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Check size limit
	needsCompact := false
	if len(q.results) >= q.maxSize {
		// Remove oldest result
		q.results = q.results[1:]
		needsCompact = true
	}

	q.results = append(q.results, res)
	if err := q.appendResult(res); err != nil {
		return err
	}
	if needsCompact {
		return q.compact()
	}
	return nil
}

// AckUpto drops every result at or below seq, in response to the
// control plane's ack_seq frame.
func (q *Queue) AckUpto(seq int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.pruneLocked(seq)
	return q.maybeCompact(removed)
}

// PruneAcked removes results <= seq without forcing a full rewrite,
// used once at startup against the seq persisted by SaveAckedSeq.
func (q *Queue) PruneAcked(seq int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.pruneLocked(seq)
	return q.maybeCompact(removed)
}

// GetUnacked returns every result the control plane hasn't acked yet,
// for toolsurface.Client.ResendQueued to replay after a reconnect.
func (q *Queue) GetUnacked() []ToolResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]ToolResult, len(q.results))
	copy(result, q.results)
	return result
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}

// LoadAckedSeq loads the seq the control plane last acked before the
// daemon's previous run stopped, so the queue can prune anything
// already acked before replaying the rest.
func LoadAckedSeq(stateDir string) (int64, error) {
	path := filepath.Join(stateDir, "acked-seq")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var seq int64
	if _, err := fmt.Sscanf(string(data), "%d", &seq); err != nil {
		return 0, nil
	}
	return seq, nil
}

// SaveAckedSeq persists the control plane's most recent ack_seq, read
// back by LoadAckedSeq on the daemon's next startup.
func SaveAckedSeq(stateDir string, seq int64) error {
	path := filepath.Join(stateDir, "acked-seq")
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", seq)), 0644)
}
