// Package domain holds the value types shared across the relay.
package domain

import "time"

// HistoryEntry is one prompt and the reply generated for it.
type HistoryEntry struct {
	User string `json:"user"`
	Host string `json:"host"`
}

// ArchivedSession is a history log captured at the moment a session ended.
type ArchivedSession struct {
	ID         string         `json:"id"`
	EndedAt    time.Time      `json:"ended_at"`
	EntryCount int            `json:"entry_count"`
	Entries    []HistoryEntry `json:"entries,omitempty"`
}
