package sessionstore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agent-command/agentd/internal/spawnpolicy"
)

// DiskEntry is one row of an agent family's on-disk session index,
// read defensively per spec.md §6 "the core parses defensively and
// treats absent/unreadable paths as empty."
type DiskEntry struct {
	SessionID string
	Project   string
	Display   string
	Timestamp time.Time
}

type jsonlRow struct {
	Timestamp string `json:"timestamp"`
	Project   string `json:"project"`
	Display   string `json:"display"`
	SessionID string `json:"session_id"`
}

func (row jsonlRow) toEntry(fallbackTime time.Time) (DiskEntry, bool) {
	if row.SessionID == "" {
		return DiskEntry{}, false
	}
	ts := fallbackTime
	if row.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, row.Timestamp); err == nil {
			ts = t
		}
	}
	return DiskEntry{
		SessionID: row.SessionID,
		Project:   row.Project,
		Display:   row.Display,
		Timestamp: ts,
	}, true
}

// ListOnDisk reads loc's index, tolerating absent files/directories and
// malformed rows, per spec.md §6.
func ListOnDisk(loc spawnpolicy.IndexLocation) ([]DiskEntry, error) {
	switch loc.Kind {
	case spawnpolicy.IndexJSONLFile:
		return listJSONLFile(loc.Path)
	case spawnpolicy.IndexDatePartitioned:
		return listDatePartitioned(loc.Path)
	default:
		return nil, nil
	}
}

func listJSONLFile(path string) ([]DiskEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []DiskEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var row jsonlRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		if entry, ok := row.toEntry(time.Time{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func listDatePartitioned(root string) ([]DiskEntry, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var entries []DiskEntry
	_ = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}

		dirTime := timeFromDatePath(root, path)
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			var row jsonlRow
			if json.Unmarshal(scanner.Bytes(), &row) == nil {
				if row.SessionID == "" {
					row.SessionID = strings.TrimSuffix(filepath.Base(path), ".jsonl")
				}
				if entry, ok := row.toEntry(dirTime); ok {
					entries = append(entries, entry)
				}
			}
		}
		return nil
	})
	return entries, nil
}

// timeFromDatePath recovers a timestamp from a .../YYYY/MM/DD/<id>.jsonl
// path when the entry's own row carries none.
func timeFromDatePath(root, path string) time.Time {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return time.Time{}
	}
	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	if len(parts) < 3 {
		return time.Time{}
	}
	y, errY := strconv.Atoi(parts[len(parts)-3])
	mo, errM := strconv.Atoi(parts[len(parts)-2])
	d, errD := strconv.Atoi(parts[len(parts)-1])
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
}
