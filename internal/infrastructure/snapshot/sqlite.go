package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tirewatch/backend/internal/domain"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// SQLiteStore keeps comparison snapshots in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. ":memory:" is accepted.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: every :memory: connection is its own database, and writers serialize anyway
	db.SetMaxOpenConns(1)

	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database and applies the schema
func New(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save stores a snapshot with its rows. An empty ID is filled with a new UUID.
func (s *SQLiteStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.TakenOn == "" {
		snap.TakenOn = snap.CreatedAt.Format(time.DateOnly)
	}

	sources, err := json.Marshal(snap.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	summaries, err := json.Marshal(snap.Summaries)
	if err != nil {
		return fmt.Errorf("encode summaries: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, taken_on, created_at, rules_version, sources, summaries, row_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TakenOn, snap.CreatedAt.UnixNano(), snap.RulesVersion,
		string(sources), string(summaries), len(snap.Rows),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_rows
		 (snapshot_id, position, sku_name, name, brand, raw_specs, spec, occurrence, reference_price, prices, ply)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rows: %w", err)
	}
	defer stmt.Close()

	for i, row := range snap.Rows {
		prices, err := json.Marshal(row.Prices)
		if err != nil {
			return fmt.Errorf("encode prices: %w", err)
		}
		var ply sql.NullString
		if len(row.Ply) > 0 {
			b, err := json.Marshal(row.Ply)
			if err != nil {
				return fmt.Errorf("encode ply: %w", err)
			}
			ply = sql.NullString{String: string(b), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			snap.ID, i, row.SKUName, row.Name, row.Brand, row.RawSpecs, row.Spec, row.Occurrence,
			row.ReferencePrice, string(prices), ply,
		); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.WithFields(log.Fields{"id": snap.ID, "rows": len(snap.Rows)}).Debug("snapshot stored")
	return nil
}

// Get loads one snapshot with its rows
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, taken_on, created_at, rules_version, sources, summaries
		 FROM snapshots WHERE id = ?`, id)
	return s.load(ctx, row)
}

// Latest loads the most recently created snapshot
func (s *SQLiteStore) Latest(ctx context.Context) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, taken_on, created_at, rules_version, sources, summaries
		 FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	return s.load(ctx, row)
}

// List returns snapshot headers, newest first
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken_on, created_at, row_count
		 FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	infos := make([]domain.SnapshotInfo, 0)
	for rows.Next() {
		var info domain.SnapshotInfo
		var createdAt int64
		if err := rows.Scan(&info.ID, &info.TakenOn, &createdAt, &info.RowCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.CreatedAt = time.Unix(0, createdAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) load(ctx context.Context, row *sql.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var createdAt int64
	var sources, summaries string

	err := row.Scan(&snap.ID, &snap.TakenOn, &createdAt, &snap.RulesVersion, &sources, &summaries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(0, createdAt).UTC()

	if err := json.Unmarshal([]byte(sources), &snap.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if err := json.Unmarshal([]byte(summaries), &snap.Summaries); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}

	snap.Rows, err = s.loadRows(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SQLiteStore) loadRows(ctx context.Context, id string) ([]domain.ComparisonRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sku_name, name, brand, raw_specs, spec, occurrence, reference_price, prices, ply
		 FROM snapshot_rows WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ComparisonRow, 0)
	for rows.Next() {
		var r domain.ComparisonRow
		var refPrice decimal.NullDecimal
		var prices string
		var ply sql.NullString

		if err := rows.Scan(&r.SKUName, &r.Name, &r.Brand, &r.RawSpecs, &r.Spec, &r.Occurrence,
			&refPrice, &prices, &ply); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.ReferencePrice = refPrice

		if err := json.Unmarshal([]byte(prices), &r.Prices); err != nil {
			return nil, fmt.Errorf("decode prices: %w", err)
		}
		if ply.Valid {
			if err := json.Unmarshal([]byte(ply.String), &r.Ply); err != nil {
				return nil, fmt.Errorf("decode ply: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
