package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// Schema creates the scan journal table
const Schema = `
create table if not exists cube_scans (
    id          bigserial primary key,
    created_at  timestamptz not null default now(),
    request_id  text not null,
    image_hash  text not null,
    width       int not null,
    height      int not null,
    outcome     text not null,
    vertices    int not null default 0,
    duration_ms bigint not null,
    result_json jsonb
)`

// Scan is one journaled request
type Scan struct {
	RequestID string
	ImageHash string
	Width     int
	Height    int
	// Outcome is "ok", a failure reason tag, or "error"
	Outcome  string
	Vertices int
	Duration time.Duration
	// Result is the response body on success
	Result []byte
}

// Recorder persists scans
type Recorder interface {
	Record(ctx context.Context, s Scan) error
}

// ScanRepo writes scans to Postgres
type ScanRepo struct{ DB *sql.DB }

func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{DB: db} }

// Open connects to Postgres through the pgx driver and checks the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the journal table if needed
func (r *ScanRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, Schema)
	return err
}

// Record inserts one scan
func (r *ScanRepo) Record(ctx context.Context, s Scan) error {
	const q = `
insert into cube_scans (request_id, image_hash, width, height, outcome, vertices, duration_ms, result_json)
values ($1, $2, $3, $4, $5, $6, $7, $8)`

	var result any
	if len(s.Result) > 0 {
		result = string(s.Result)
	}
	_, err := r.DB.ExecContext(ctx, q,
		s.RequestID, s.ImageHash, s.Width, s.Height, s.Outcome, s.Vertices, s.Duration.Milliseconds(), result)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// CountByOutcome tallies journaled scans per outcome since a point in time
func (r *ScanRepo) CountByOutcome(ctx context.Context, since time.Time) (map[string]int, error) {
	const q = `select outcome, count(*) from cube_scans where created_at >= $1 group by outcome`

	rows, err := r.DB.QueryContext(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// Nop discards scans
type Nop struct{}

func (Nop) Record(context.Context, Scan) error { return nil }
