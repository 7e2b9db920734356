// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/gatekeeper/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by
// the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `id, signature, version, regression_of, status, severity,
	message, stack_trace, service_name, environment,
	occurrence_count, first_seen, last_seen, metadata, runbook_url,
	ai_summary, ai_suggested_fix, ai_location`

// FindLatestBySignature returns the highest-version incident for a signature.
func (s *Store) FindLatestBySignature(ctx context.Context, signature string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.FindLatestBySignature", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE signature = $1 ORDER BY version DESC LIMIT 1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// Get retrieves an incident by id.
func (s *Store) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// Create inserts a new incident version. A unique violation on
// (signature, version) maps to incident.ErrVersionConflict so the engine
// can re-read and re-classify.
func (s *Store) Create(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Create", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	metadataJSON, err := json.Marshal(inc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err = s.pool.Exec(ctx, query,
		inc.ID, inc.Signature, inc.Version, nullable(inc.RegressionOf), string(inc.Status), string(inc.Severity),
		inc.Message, inc.StackTrace, inc.ServiceName, inc.Environment,
		inc.OccurrenceCount, inc.FirstSeen, inc.LastSeen, metadataJSON, nullable(inc.RunbookURL),
		nullable(inc.AISummary), nullable(inc.AISuggestedFix), nullable(inc.AILocation),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return incident.ErrVersionConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an incident. Signature and version
// are immutable by contract and not part of the statement.
func (s *Store) Update(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	metadataJSON, err := json.Marshal(inc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET
			status = $2,
			severity = $3,
			occurrence_count = $4,
			first_seen = $5,
			last_seen = $6,
			metadata = $7,
			runbook_url = $8
		WHERE id = $1`,
		inc.ID, string(inc.Status), string(inc.Severity),
		inc.OccurrenceCount, inc.FirstSeen, inc.LastSeen, metadataJSON, nullable(inc.RunbookURL),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// SetEnrichment merges AI analysis fields only, leaving status, counters
// and timestamps untouched even if they changed since creation.
func (s *Store) SetEnrichment(ctx context.Context, id string, a *incident.Analysis) error {
	ctx, span := tracer.Start(ctx, "pgstore.SetEnrichment", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET ai_summary = $2, ai_suggested_fix = $3, ai_location = $4 WHERE id = $1`,
		id, nullable(a.Summary), nullable(a.SuggestedFix), nullable(a.Location),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// List returns all incidents ordered by last seen, most recent first.
func (s *Store) List(ctx context.Context) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents ORDER BY last_seen DESC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// DeleteAll wipes every incident.
func (s *Store) DeleteAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pgstore.DeleteAll", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM incidents`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete incidents: %w", err)
	}
	return nil
}

// scanIncident scans a single row. Returns (nil, nil) when no row is found.
func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc            incident.Incident
		status         string
		severity       string
		regressionOf   *string
		metadataJSON   []byte
		runbookURL     *string
		aiSummary      *string
		aiSuggestedFix *string
		aiLocation     *string
		firstSeen      time.Time
		lastSeen       time.Time
	)

	err := row.Scan(
		&inc.ID, &inc.Signature, &inc.Version, &regressionOf, &status, &severity,
		&inc.Message, &inc.StackTrace, &inc.ServiceName, &inc.Environment,
		&inc.OccurrenceCount, &firstSeen, &lastSeen, &metadataJSON, &runbookURL,
		&aiSummary, &aiSuggestedFix, &aiLocation,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	inc.Status = incident.Status(status)
	inc.Severity = incident.Severity(severity)
	inc.FirstSeen = firstSeen
	inc.LastSeen = lastSeen

	if regressionOf != nil {
		inc.RegressionOf = *regressionOf
	}
	if runbookURL != nil {
		inc.RunbookURL = *runbookURL
	}
	if aiSummary != nil {
		inc.AISummary = *aiSummary
	}
	if aiSuggestedFix != nil {
		inc.AISuggestedFix = *aiSuggestedFix
	}
	if aiLocation != nil {
		inc.AILocation = *aiLocation
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &inc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &inc, nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
