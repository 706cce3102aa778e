// Package postgres upserts canonical observations into a single table.
// Reruns re-insert the same observations; the conflict target makes that a
// no-op, so the table converges on the partition files.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Sink writes canonical records to Postgres. It implements
// pipeline.RecordSink.
type Sink struct {
	pool    *pgxpool.Pool
	table   string
	batch   int
	insert  string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSink connects a pool, ensures the observations table exists, and
// returns the sink. batch bounds how many inserts ride one round trip.
func NewSink(ctx context.Context, dsn, table string, batch int, metrics *observability.Metrics, logger *slog.Logger) (*Sink, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if batch <= 0 {
		batch = 500
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Sink{
		pool:    pool,
		table:   table,
		batch:   batch,
		insert:  insertSQL(table),
		metrics: metrics,
		logger:  logger,
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure observations table: %w", err)
	}
	return s, nil
}

// Publish inserts one unit's canonical records in batches.
func (s *Sink) Publish(ctx context.Context, unit domain.WorkUnit, recs []domain.CanonicalRecord) error {
	if len(recs) == 0 {
		return nil
	}

	for i := 0; i < len(recs); i += s.batch {
		j := i + s.batch
		if j > len(recs) {
			j = len(recs)
		}

		b := &pgx.Batch{}
		for _, rec := range recs[i:j] {
			b.Queue(s.insert, rowArgs(unit, rec)...)
		}

		br := s.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				s.metrics.SinkRecords.WithLabelValues("postgres", "error").Add(float64(len(recs) - i))
				return fmt.Errorf("insert observations: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			s.metrics.SinkRecords.WithLabelValues("postgres", "error").Add(float64(len(recs) - i))
			return fmt.Errorf("insert observations: %w", err)
		}
	}

	s.metrics.SinkRecords.WithLabelValues("postgres", "success").Add(float64(len(recs)))
	return nil
}

func (s *Sink) Close() {
	s.pool.Close()
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL(s.table))
	return err
}

func schemaSQL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("\tdataset text NOT NULL,\n")
	b.WriteString("\tcountry text NOT NULL,\n")
	b.WriteString("\tstation_id text NOT NULL,\n")
	b.WriteString("\tobserved_at timestamptz NOT NULL,\n")
	for _, field := range domain.CanonicalFields {
		fmt.Fprintf(&b, "\t%s double precision,\n", field)
	}
	b.WriteString("\tPRIMARY KEY (dataset, station_id, observed_at)\n)")
	return b.String()
}

func insertSQL(table string) string {
	cols := []string{"dataset", "country", "station_id", "observed_at"}
	for _, field := range domain.CanonicalFields {
		cols = append(cols, string(field))
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (dataset, station_id, observed_at) DO NOTHING",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

// rowArgs maps one record to insert arguments. Nil field pointers become
// SQL NULL.
func rowArgs(unit domain.WorkUnit, rec domain.CanonicalRecord) []any {
	args := make([]any, 0, len(domain.CanonicalFields)+4)
	args = append(args, string(unit.Dataset), unit.Country, rec.StationID, rec.Time.Time())
	for _, field := range domain.CanonicalFields {
		args = append(args, rec.Values[field])
	}
	return args
}
