package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// ErrNotFound is returned when a snapshot id is unknown.
var ErrNotFound = errors.New("not found")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SaveSnapshot records nodes as a new snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, label string, nodes []core.Node) (*Snapshot, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap, err := s.insertSnapshot(ctx, tx, label, nodes)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Debug("saved snapshot", "id", snap.ID, "label", label, "nodes", snap.NodeCount)
	return snap, nil
}

func (s *Store) insertSnapshot(ctx context.Context, tx execer, label string, nodes []core.Node) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        generateID(),
		Label:     label,
		NodeCount: len(nodes),
		CreatedAt: s.now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, label, node_count, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.Label, snap.NodeCount, snap.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_nodes (snapshot_id, node_id, status, superseded_by, data)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		var supersededBy sql.NullString
		if n.SupersededBy != "" {
			supersededBy = sql.NullString{String: n.SupersededBy, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, n.ID, string(n.Status), supersededBy, string(data)); err != nil {
			return nil, fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	return snap, nil
}

// LoadSnapshot returns the nodes of a snapshot ordered by id.
func (s *Store) LoadSnapshot(ctx context.Context, id string) ([]core.Node, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT node_count FROM snapshots WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM snapshot_nodes WHERE snapshot_id = ? ORDER BY node_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query snapshot nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	nodes := make([]core.Node, 0, count)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot node: %w", err)
		}
		var n core.Node
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, fmt.Errorf("decode snapshot node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListSnapshots returns the most recent snapshots, newest first. limit <= 0
// returns all of them.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, node_count, created_at FROM snapshots
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Label, &snap.NodeCount, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
