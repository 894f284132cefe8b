package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// AuditStore implements domain.AuditStore on the audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Insert appends ev. Detail is stored as JSONB.
func (s *AuditStore) Insert(ctx context.Context, ev domain.Event) error {
	var detail []byte
	if len(ev.Detail) > 0 {
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal event detail: %w", err)
		}
		detail = b
	}
	const q = `INSERT INTO audit_log (id, event_type, pair, message, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, ev.ID, string(ev.Type), ev.Pair, ev.Message, detail, ev.At); err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.Type, err)
	}
	return nil
}

// List returns events newest first, filtered by opts.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	q, args := listQuery(opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	evs, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return evs, nil
}

func listQuery(opts domain.ListOpts) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT id, event_type, pair, message, detail, created_at FROM audit_log WHERE TRUE`)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		b.WriteString(" AND created_at >= " + arg(*opts.Since))
	}
	if opts.Until != nil {
		b.WriteString(" AND created_at <= " + arg(*opts.Until))
	}
	b.WriteString(" ORDER BY created_at DESC")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return b.String(), args
}

func scanEvent(row pgx.CollectableRow) (domain.Event, error) {
	var (
		ev     domain.Event
		typ    string
		detail []byte
	)
	if err := row.Scan(&ev.ID, &typ, &ev.Pair, &ev.Message, &detail, &ev.At); err != nil {
		return ev, err
	}
	ev.Type = domain.EventType(typ)
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return ev, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return ev, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
