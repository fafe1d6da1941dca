// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

var ErrHistoryNotFound = errors.New("history entry not found")

const defaultHistoryLimit = 50

// HistoryEntry is one finished workflow invocation
type HistoryEntry struct {
	ID            int64     `json:"id"`
	InvocationID  string    `json:"invocationId"`
	Workflow      string    `json:"workflow"`
	Outcome       string    `json:"outcome"`
	Status        string    `json:"status,omitempty"`
	FaultKind     string    `json:"faultKind,omitempty"`
	Message       string    `json:"message,omitempty"`
	MachineDigest string    `json:"machine,omitempty"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Failed reports whether the invocation ended in a fault
func (h *HistoryEntry) Failed() bool {
	return h.FaultKind != ""
}

type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Create stores entry and fills in its id and timestamp
func (s *HistoryStore) Create(ctx context.Context, entry *HistoryEntry) error {
	if entry.InvocationID == "" || entry.Workflow == "" {
		return errors.New("history entry requires invocation id and workflow")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO license_events (invocation_id, workflow, outcome, status, fault_kind, message, machine_digest, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		entry.InvocationID,
		entry.Workflow,
		entry.Outcome,
		entry.Status,
		entry.FaultKind,
		entry.Message,
		entry.MachineDigest,
		entry.DurationMs,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return errors.Wrap(err, "could not insert history entry")
	}

	return nil
}

// List returns the newest entries first. A non-positive limit uses the default.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, invocation_id, workflow, outcome, status, fault_kind, message, machine_digest, duration_ms, created_at
		FROM license_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "could not query history")
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "could not iterate history")
	}

	return entries, nil
}

// Last returns the most recent entry of a workflow
func (s *HistoryStore) Last(ctx context.Context, workflow string) (*HistoryEntry, error) {
	query := `
		SELECT id, invocation_id, workflow, outcome, status, fault_kind, message, machine_digest, duration_ms, created_at
		FROM license_events
		WHERE workflow = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	entry, err := scanHistory(s.db.QueryRowContext(ctx, query, workflow))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// Prune keeps the newest keep entries and deletes the rest
func (s *HistoryStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM license_events
		WHERE id NOT IN (
			SELECT id FROM license_events ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, errors.Wrap(err, "could not prune history")
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(row scanner) (*HistoryEntry, error) {
	entry := &HistoryEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.InvocationID,
		&entry.Workflow,
		&entry.Outcome,
		&entry.Status,
		&entry.FaultKind,
		&entry.Message,
		&entry.MachineDigest,
		&entry.DurationMs,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "could not scan history entry")
	}
	return entry, nil
}
