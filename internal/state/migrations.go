package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/nodecheck/internal/consolidate"
)

// RecordConsolidation stores the before and after snapshots of res and its
// migration report in one transaction.
func (s *Store) RecordConsolidation(ctx context.Context, label string, res *consolidate.Result) (*Migration, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	report, err := json.Marshal(res.Report)
	if err != nil {
		return nil, fmt.Errorf("encode migration report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := s.insertSnapshot(ctx, tx, label+" (before)", res.Previous.Nodes())
	if err != nil {
		return nil, err
	}
	after, err := s.insertSnapshot(ctx, tx, label, res.Registry.Nodes())
	if err != nil {
		return nil, err
	}

	m := &Migration{
		ID:         generateID(),
		BeforeID:   before.ID,
		AfterID:    after.ID,
		EntryCount: len(res.Report.Entries),
		Report:     string(report),
		CreatedAt:  s.now(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO migrations (id, before_id, after_id, entry_count, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.BeforeID, m.AfterID, m.EntryCount, m.Report, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Debug("recorded consolidation", "id", m.ID, "entries", m.EntryCount)
	return m, nil
}

// ListMigrations returns recorded consolidations, newest first. limit <= 0
// returns all of them.
func (s *Store) ListMigrations(ctx context.Context, limit int) ([]Migration, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, before_id, after_id, entry_count, report, created_at FROM migrations
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.ID, &m.BeforeID, &m.AfterID, &m.EntryCount, &m.Report, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MigrationReport decodes the stored report of m.
func (m Migration) MigrationReport() (consolidate.MigrationReport, error) {
	var report consolidate.MigrationReport
	if err := json.Unmarshal([]byte(m.Report), &report); err != nil {
		return report, fmt.Errorf("decode migration report: %w", err)
	}
	return report, nil
}
