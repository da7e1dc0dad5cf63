package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/easelhq/framegit/pkg/errs"
)

// RepoInfo is the persisted repository state. It is written after every
// successful mutation and re-hydrated when the engine starts.
type RepoInfo struct {
	RepoURL        string    `json:"repoUrl"`
	CurrentBranch  string    `json:"currentBranch"`
	Branches       []string  `json:"branches"`
	LastCommitDate time.Time `json:"lastCommitDate"`
	Initialized    bool      `json:"isInitialized"`
}

// HasBranch reports whether the named branch is recorded.
func (i *RepoInfo) HasBranch(name string) bool {
	for _, b := range i.Branches {
		if b == name {
			return true
		}
	}
	return false
}

// AddBranch records a branch name if not already present.
func (i *RepoInfo) AddBranch(name string) {
	if !i.HasBranch(name) {
		i.Branches = append(i.Branches, name)
	}
}

const repoInfoKey = "repo-info"

// SaveRepoInfo serializes and upserts the repository state. The current
// branch is always recorded in the branch set before saving.
func (s *DB) SaveRepoInfo(info *RepoInfo) error {
	if info.CurrentBranch != "" {
		info.AddBranch(info.CurrentBranch)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("save repo info: marshal: %w", err)
	}
	return s.SetKV(repoInfoKey, data)
}

// LoadRepoInfo re-hydrates the repository state. A store that has never
// been initialized returns a zero-valued RepoInfo, not an error.
func (s *DB) LoadRepoInfo() (*RepoInfo, error) {
	data, err := s.GetKV(repoInfoKey)
	if errors.Is(err, errs.ErrNotFound) {
		return &RepoInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	var info RepoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("load repo info: unmarshal: %w", err)
	}
	return &info, nil
}

// SetKV upserts a key-value pair.
func (s *DB) SetKV(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set kv %q: %w", key, err)
	}
	return nil
}

// GetKV reads a key, reporting errs.ErrNotFound for missing keys.
func (s *DB) GetKV(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("kv %q: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get kv %q: %w", key, err)
	}
	return value, nil
}

// HistoryEntry is one record in the append-only operation log.
type HistoryEntry struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// AppendHistory records an operation in the history log. History failures
// are reported but the log is never rewritten or truncated.
func (s *DB) AppendHistory(opType string, details map[string]string) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("append history: marshal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO history (id, type, timestamp, details) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), opType, time.Now().UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns up to limit entries, newest first.
func (s *DB) History(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, type, timestamp, details FROM history ORDER BY timestamp DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts int64
		var details string
		if err := rows.Scan(&e.ID, &e.Type, &ts, &details); err != nil {
			return nil, fmt.Errorf("read history: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("read history: details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
