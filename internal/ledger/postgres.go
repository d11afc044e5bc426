package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver and identifier quoting
)

const (
	defaultTable           = "prayer_trigger_ledger"
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Postgres stores records in a table keyed by (fire_date, prayer, kind).
// Inserts use ON CONFLICT DO NOTHING, so the affected row count is the
// compare-and-set result.
type Postgres struct {
	db    *sql.DB
	table string
}

// NewPostgres wraps db. An empty table uses the default name.
func NewPostgres(db *sql.DB, table string) *Postgres {
	if table == "" {
		table = defaultTable
	}
	return &Postgres{db: db, table: pq.QuoteIdentifier(table)}
}

// OpenPostgres opens dsn, pings it and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := NewPostgres(db, "")
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the ledger table.
func (p *Postgres) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	fire_date DATE NOT NULL,
	prayer TEXT NOT NULL,
	kind TEXT NOT NULL,
	fired_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (fire_date, prayer, kind)
)`, p.table)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("error creating ledger table: %w", err)
	}
	return nil
}

func (p *Postgres) HasFired(ctx context.Context, key Key) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE fire_date = $1 AND prayer = $2 AND kind = $3)`, p.table)
	var ok bool
	err := p.db.QueryRowContext(ctx, query, key.Date, key.Prayer.String(), string(key.Kind)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("error checking ledger record %s: %w", key, err)
	}
	return ok, nil
}

func (p *Postgres) MarkFired(ctx context.Context, key Key, at time.Time) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (fire_date, prayer, kind, fired_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT DO NOTHING`, p.table)
	res, err := p.db.ExecContext(ctx, query, key.Date, key.Prayer.String(), string(key.Kind), at.UTC())
	if err != nil {
		return false, fmt.Errorf("error marking ledger record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) Prune(ctx context.Context, today time.Time) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE fire_date < $1`, p.table)
	res, err := p.db.ExecContext(ctx, query, PruneCutoff(today))
	if err != nil {
		return 0, fmt.Errorf("error pruning ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading rows affected: %w", err)
	}
	return int(n), nil
}

func (p *Postgres) List(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT fire_date, prayer, kind, fired_at FROM %s ORDER BY fire_date, fired_at`, p.table)
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing ledger: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			date       time.Time
			name, kind string
			firedAt    time.Time
		)
		if err := rows.Scan(&date, &name, &kind, &firedAt); err != nil {
			return nil, fmt.Errorf("error scanning ledger row: %w", err)
		}
		key, err := ParseKey(date.Format(dateLayout) + ":" + name + ":" + kind)
		if err != nil {
			continue
		}
		recs = append(recs, Record{Key: key, FiredAt: firedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	sortRecords(recs)
	return recs, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
