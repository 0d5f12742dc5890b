// Package historystore persists every ExecutionState the
// ExecutionGraph publishes into Postgres via bun, as an optional
// durable-history export (SPEC_FULL.md §6): registered as a
// cgraph.Observer, so enabling it never changes in-process dispatch
// or step behavior, only adds a side channel.
//
// Grounded on src/internal/db/base.go's bun.DB construction
// (sql.OpenDB(pgdriver.NewConnector(...)) wrapped in bun.NewDB with
// pgdialect) and src/node/models.go's bun model tagging style
// (bun.BaseModel embed, explicit column tags).
package historystore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/chidori-ai/chidori/internal/cgraph"
)

// StateRecord is the durable row for one published ExecutionState.
type StateRecord struct {
	bun.BaseModel `bun:"table:execution_states,alias:execution_state"`

	ChronologyID       string    `bun:"chronology_id,pk"`
	ParentChronologyID string    `bun:"parent_chronology_id"`
	EnclosureKind       string    `bun:"enclosure_kind,notnull"`
	OperationCount      int       `bun:"operation_count,notnull"`
	InsertedAt          time.Time `bun:"inserted_at,notnull,default:current_timestamp"`
}

// Store wraps a bun.DB connection and implements cgraph.Observer.
type Store struct {
	db *bun.DB
}

// Open connects to dsn (a Postgres connection string) and returns a
// Store ready to register against an ExecutionGraph.
func Open(dsn string) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate creates the execution_states table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*StateRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name identifies this observer to the ExecutionGraph.
func (s *Store) Name() string { return "historystore" }

// OnEvent persists state-inserted events; any other event type is a
// no-op, and a write failure is logged rather than propagated, since
// an observer must never be able to destabilize the graph it watches
// (cgraph.Graph.publish already isolates observer panics; this keeps
// the same isolation for ordinary errors).
func (s *Store) OnEvent(ctx context.Context, event cgraph.Event) {
	if event.Type != cgraph.EventStateInserted || event.State == nil {
		return
	}
	record := &StateRecord{
		ChronologyID:       event.State.ChronologyID,
		ParentChronologyID: event.State.ParentStateChronologyID,
		EnclosureKind:      string(event.State.EvaluatingEnclosedState.Kind),
		OperationCount:     len(event.State.OperationByID),
		InsertedAt:         time.Now(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		log.Error().Err(err).Str("chronology_id", record.ChronologyID).Msg("failed to persist execution state")
	}
}
