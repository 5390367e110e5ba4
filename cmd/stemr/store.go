package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// pathStore persists proposed LNA paths in long format: one row per
// (path, time step, event).
type pathStore struct {
	path string
	db   *sql.DB
}

func newPathStore(path string) *pathStore {
	return &pathStore{path: path}
}

func (s *pathStore) Init(ctx context.Context) error {
	if s.path == "" {
		return errors.New("store path is required")
	}
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS lna_paths (
			path_id   INTEGER NOT NULL,
			step      INTEGER NOT NULL,
			t         REAL    NOT NULL,
			event     INTEGER NOT NULL,
			incidence REAL    NOT NULL,
			PRIMARY KEY (path_id, step, event)
		)
	`)
	if err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

// SavePath stores one proposed path (rows = time points, column 0 = time,
// column 1+e = cumulative incidence of event e).
func (s *pathStore) SavePath(ctx context.Context, id int, path *mat.Dense) error {
	if s.db == nil {
		return errors.New("store not initialized")
	}
	rows, cols := path.Dims()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lna_paths (path_id, step, t, event, incidence)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path_id, step, event) DO UPDATE SET
			t = excluded.t,
			incidence = excluded.incidence
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i := 0; i < rows; i++ {
		t := path.At(i, 0)
		for e := 0; e < cols-1; e++ {
			if _, err := stmt.ExecContext(ctx, id, i, t, e, path.At(i, 1+e)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("store path %d step %d: %w", id, i, err)
			}
		}
	}
	return tx.Commit()
}

// LoadPath reads a stored path back into a matrix with the same layout
// SavePath wrote.
func (s *pathStore) LoadPath(ctx context.Context, id int) (*mat.Dense, error) {
	if s.db == nil {
		return nil, errors.New("store not initialized")
	}
	var steps, events int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT step), COUNT(DISTINCT event) FROM lna_paths WHERE path_id = ?`,
		id).Scan(&steps, &events)
	if err != nil {
		return nil, err
	}
	if steps == 0 {
		return nil, fmt.Errorf("path %d not found", id)
	}
	out := mat.NewDense(steps, events+1, nil)
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, t, event, incidence FROM lna_paths WHERE path_id = ? ORDER BY step, event`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var step, event int
		var t, incid float64
		if err := rows.Scan(&step, &t, &event, &incid); err != nil {
			return nil, err
		}
		out.Set(step, 0, t)
		out.Set(step, 1+event, incid)
	}
	return out, rows.Err()
}

func (s *pathStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
