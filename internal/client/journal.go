package client

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const journalCapacity = 16

type journalEntry struct {
	action   string
	value    string
	sequence uint64
	at       time.Time
}

// journal keeps the most recent events of an upload session for bug reports.
type journal struct {
	mu       sync.Mutex
	entries  [journalCapacity]journalEntry
	next     int
	sequence uint64
}

func (j *journal) record(action string, format string, a ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++
	j.entries[j.next] = journalEntry{
		action:   action,
		value:    fmt.Sprintf(format, a...),
		sequence: j.sequence,
		at:       time.Now(),
	}
	j.next = (j.next + 1) % journalCapacity
}

func (j *journal) dump() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var sb strings.Builder
	for i := 0; i < journalCapacity; i++ {
		entry := j.entries[(j.next+i)%journalCapacity]
		if entry.sequence == 0 {
			continue
		}

		fmt.Fprintf(&sb, "#%d %s %s: %s\n", entry.sequence, entry.at.Format(time.RFC3339Nano), entry.action, entry.value)
	}
	return sb.String()
}
