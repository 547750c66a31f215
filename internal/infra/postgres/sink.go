// Package postgres loads extracted infractions into a Postgres table with COPY.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/filedate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is used when no table is configured.
const DefaultTable = "infractions"

// Columns are loaded in this order.
var Columns = []string{
	"run_id", "source_file", "row_id", "fine_date",
	"block", "lot", "name", "infraction_number", "amount", "extracted_at",
}

// DB is the subset of *pgxpool.Pool the sink uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Sink writes records to table, creating it on first use.
type Sink struct {
	db    DB
	table pgx.Identifier
	now   func() time.Time
}

// Open connects to dsn and returns a sink plus a close function.
func Open(ctx context.Context, dsn, table string) (*Sink, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres.Open: pgxpool: %w", err)
	}
	return NewSink(pool, table), pool.Close, nil
}

// NewSink returns a sink over db. table may be schema qualified ("public.infractions").
func NewSink(db DB, table string) *Sink {
	if table == "" {
		table = DefaultTable
	}
	return &Sink{db: db, table: splitFQN(table), now: time.Now}
}

func (s *Sink) Name() string {
	return "postgres:" + strings.Join(s.table, ".")
}

// CreateTableSQL returns the DDL for the target table.
func (s *Sink) CreateTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  run_id            uuid        NOT NULL,
  source_file       text        NOT NULL,
  row_id            text,
  fine_date         date,
  block             text        NOT NULL,
  lot               text        NOT NULL,
  name              text        NOT NULL,
  infraction_number text        NOT NULL,
  amount            text        NOT NULL,
  extracted_at      timestamptz NOT NULL
)`, s.table.Sanitize())
}

// Write creates the table if needed and copies all records in one COPY.
func (s *Sink) Write(ctx context.Context, runID string, records []domain.Infraction) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, s.CreateTableSQL()); err != nil {
		return fmt.Errorf("Sink.Write: ensure table: %w", err)
	}

	n, err := s.db.CopyFrom(ctx, s.table, Columns, pgx.CopyFromRows(s.rows(runID, records)))
	if err != nil {
		return fmt.Errorf("Sink.Write: copy: %w", err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("Sink.Write: copied %d of %d rows", n, len(records))
	}
	return nil
}

func (s *Sink) rows(runID string, records []domain.Infraction) [][]any {
	extracted := s.now()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		var fineDate any
		if d, ok := filedate.Civil(r.Date); ok {
			fineDate = d.In(time.UTC)
		}
		var rowID any
		if r.RowID != "" {
			rowID = r.RowID
		}
		rows = append(rows, []any{
			runID, r.Source, rowID, fineDate,
			r.Block, r.Lot, r.Name, r.InfractionNumber, r.Amount, extracted,
		})
	}
	return rows
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
