// Package sqlite stores vectors in an embedded SQLite database. Filtering
// happens in SQL, scoring in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"rag-memory/internal/domain"
	"rag-memory/internal/vectorstore"
)

// Storage implements vectorstore.Storage on SQLite.
type Storage struct {
	db *sql.DB
}

// NewStorage opens or creates the database at path. ":memory:" is accepted
// for throwaway stores.
func NewStorage(path string) (*Storage, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create db dir", goerr.V("path", path))
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", path))
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate db")
	}
	return s, nil
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		dimension  INTEGER NOT NULL,
		distance   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS points (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id         TEXT NOT NULL,
		vector     BLOB NOT NULL,
		payload    TEXT NOT NULL,
		tag        TEXT,
		project    TEXT,
		UNIQUE (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_points_filter ON points(collection, tag, project);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.CollectionInfo(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Storage) CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension", "dimension", dimension)
	}
	info, err := s.CollectionInfo(ctx, name)
	switch {
	case err == nil:
		if info.Dimension != dimension {
			return goerr.Wrap(domain.ErrDimensionMismatch, "collection exists with another dimension",
				goerr.V("collection", name), goerr.V("existing", info.Dimension), goerr.V("requested", dimension))
		}
		return nil
	case !errors.Is(err, domain.ErrCollectionNotFound):
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, distance) VALUES (?, ?, ?)`,
		name, dimension, string(distance)); err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", name))
	}
	return nil
}

func (s *Storage) CollectionInfo(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var (
		dim      int
		distance string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension, distance FROM collections WHERE name = ?`, name).Scan(&dim, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CollectionInfo{}, goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", name))
	}
	if err != nil {
		return domain.CollectionInfo{}, goerr.Wrap(err, "failed to read collection", goerr.V("collection", name))
	}
	return domain.CollectionInfo{Name: name, Dimension: dim, Distance: domain.Distance(distance)}, nil
}

// Upsert writes all points in one transaction.
func (s *Storage) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	info, err := s.CollectionInfo(ctx, collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != info.Dimension {
			return goerr.Wrap(domain.ErrDimensionMismatch, "vector dimension mismatch",
				goerr.V("collection", collection), goerr.V("expected", info.Dimension), goerr.V("got", len(p.Vector)), goerr.V("id", p.ID))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, vector, payload, tag, project)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			vector = excluded.vector,
			payload = excluded.payload,
			tag = excluded.tag,
			project = excluded.project`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare upsert")
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal payload", goerr.V("id", p.ID))
		}
		tag, _ := p.Payload[domain.PayloadTag].(string)
		project, _ := p.Payload[domain.PayloadProject].(string)
		if _, err := stmt.ExecContext(ctx, collection, p.ID, encodeVector(p.Vector), string(payload), tag, project); err != nil {
			return goerr.Wrap(err, "failed to upsert point", goerr.V("id", p.ID))
		}
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit upsert")
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, collection string, vector []float32, topK int, filter domain.Filter) ([]domain.Hit, error) {
	info, err := s.CollectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Dimension {
		return nil, goerr.Wrap(domain.ErrDimensionMismatch, "query vector dimension mismatch",
			goerr.V("collection", collection), goerr.V("expected", info.Dimension), goerr.V("got", len(vector)))
	}

	rows, err := s.selectPoints(ctx, collection, filter, 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var (
			id, payload string
			blob        []byte
		)
		if err := rows.Scan(&id, &blob, &payload); err != nil {
			return nil, goerr.Wrap(err, "failed to scan point")
		}
		p, err := decodePayload(payload)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode payload", goerr.V("id", id))
		}
		hits = append(hits, domain.Hit{
			ID:      id,
			Score:   vectorstore.Score(info.Distance, decodeVector(blob), vector),
			Payload: p,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate points")
	}
	return vectorstore.TopK(hits, topK), nil
}

func (s *Storage) Scroll(ctx context.Context, collection string, filter domain.Filter, limit int) ([]domain.Hit, error) {
	if _, err := s.CollectionInfo(ctx, collection); err != nil {
		return nil, err
	}
	rows, err := s.selectPoints(ctx, collection, filter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		h, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate points")
	}
	return hits, nil
}

// Each streams matching rows; stopping early closes the cursor.
func (s *Storage) Each(ctx context.Context, collection string, filter domain.Filter, fn func(domain.Hit) bool) error {
	if _, err := s.CollectionInfo(ctx, collection); err != nil {
		return err
	}
	rows, err := s.selectPoints(ctx, collection, filter, 0)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		h, err := scanHit(rows)
		if err != nil {
			return err
		}
		if !fn(h) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return goerr.Wrap(err, "failed to iterate points")
	}
	return nil
}

func scanHit(rows *sql.Rows) (domain.Hit, error) {
	var (
		id, payload string
		blob        []byte
	)
	if err := rows.Scan(&id, &blob, &payload); err != nil {
		return domain.Hit{}, goerr.Wrap(err, "failed to scan point")
	}
	p, err := decodePayload(payload)
	if err != nil {
		return domain.Hit{}, goerr.Wrap(err, "failed to decode payload", goerr.V("id", id))
	}
	return domain.Hit{ID: id, Payload: p}, nil
}

func (s *Storage) selectPoints(ctx context.Context, collection string, filter domain.Filter, limit int) (*sql.Rows, error) {
	var (
		where = []string{"collection = ?"}
		args  = []any{collection}
	)
	if len(filter.Tags) > 0 {
		marks := make([]string, len(filter.Tags))
		for i, t := range filter.Tags {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "tag IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}

	query := "SELECT id, vector, payload FROM points WHERE " + strings.Join(where, " AND ") + " ORDER BY seq"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query points", goerr.V("collection", collection))
	}
	return rows, nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, name); err != nil {
		return goerr.Wrap(err, "failed to delete points", goerr.V("collection", name))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return goerr.Wrap(err, "failed to delete collection", goerr.V("collection", name))
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit delete")
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func decodePayload(s string) (map[string]any, error) {
	var p map[string]any
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return p, nil
}
