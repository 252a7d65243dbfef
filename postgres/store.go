package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shogotsuneto/go-rollups-broker"
)

// Compile-time interface compliance check
var (
	_ eventstore.Broker = (*PostgresBroker)(nil)
	_ eventstore.Loader = (*PostgresBroker)(nil)
)

// PostgresBroker is a PostgreSQL implementation of eventstore.Broker.
// Entry ids are the decimal per-stream versions.
type PostgresBroker struct {
	db             *sql.DB
	tableName      string
	consumeTimeout time.Duration
	pollInterval   time.Duration
}

// NewPostgresBroker creates a broker on an already opened database.
func NewPostgresBroker(db *sql.DB, config Config) (*PostgresBroker, error) {
	if db == nil {
		return nil, errors.New("database must not be nil")
	}

	tableName := config.TableName
	if tableName == "" {
		tableName = DefaultTableName
	}

	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &PostgresBroker{
		db:             db,
		tableName:      tableName,
		consumeTimeout: config.ConsumeTimeout,
		pollInterval:   pollInterval,
	}, nil
}

// InitSchema creates the table this broker uses.
func (b *PostgresBroker) InitSchema(ctx context.Context) error {
	return InitSchema(ctx, b.db, b.tableName)
}

// Close closes the database connection.
func (b *PostgresBroker) Close() error {
	return b.db.Close()
}

// loadQuery describes a range read of a single stream.
type loadQuery struct {
	after int64
	limit int
	desc  bool
}

// buildLoadQuery builds the SQL for a range read.
func (b *PostgresBroker) buildLoadQuery(streamID string, q loadQuery) (string, []interface{}) {
	query := fmt.Sprintf(`
		SELECT version, event_data, timestamp
		FROM %s
		WHERE stream_id = $1`, quoteIdentifier(b.tableName))
	args := []interface{}{streamID}

	if q.after > 0 {
		query += " AND version > $2"
		args = append(args, q.after)
	}

	if q.desc {
		query += " ORDER BY version DESC"
	} else {
		query += " ORDER BY version ASC"
	}

	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.limit)
	}

	return query, args
}

func (b *PostgresBroker) loadEvents(ctx context.Context, streamID string, q loadQuery) ([]eventstore.Event, error) {
	query, args := b.buildLoadQuery(streamID, q)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []eventstore.Event
	for rows.Next() {
		var version int64
		var event eventstore.Event

		if err := rows.Scan(&version, &event.Data, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.ID = eventstore.VersionID(version)
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

// PeekLatest returns the most recent entry of the stream.
func (b *PostgresBroker) PeekLatest(ctx context.Context, stream string) (*eventstore.Event, error) {
	events, err := b.loadEvents(ctx, stream, loadQuery{limit: 1, desc: true})
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return nil, nil
	}

	return &events[0], nil
}

// Produce appends data to the stream under a per-stream advisory lock.
func (b *PostgresBroker) Produce(ctx context.Context, stream string, data []byte) (string, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the stream to prevent concurrent appends
	_, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", stream)
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}

	var maxVersion int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s WHERE stream_id = $1", quoteIdentifier(b.tableName)), stream).Scan(&maxVersion)
	if err != nil {
		return "", fmt.Errorf("failed to get max version: %w", err)
	}

	version := maxVersion + 1
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (stream_id, version, event_data, timestamp)
		VALUES ($1, $2, $3, $4)
	`, quoteIdentifier(b.tableName)), stream, version, data, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return eventstore.VersionID(version), nil
}

// ConsumeAfter returns the first entry after id, polling until the consume timeout.
func (b *PostgresBroker) ConsumeAfter(ctx context.Context, stream string, id string) (*eventstore.Event, error) {
	after, err := eventstore.ParseVersionID(id)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.consumeTimeout)
	for {
		events, err := b.loadEvents(ctx, stream, loadQuery{after: after, limit: 1})
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			return &events[0], nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if wait > b.pollInterval {
			wait = b.pollInterval
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Load retrieves entries of the stream using the specified options.
func (b *PostgresBroker) Load(ctx context.Context, stream string, opts eventstore.LoadOptions) ([]eventstore.Event, error) {
	after, err := eventstore.ParseVersionID(opts.After)
	if err != nil {
		return nil, err
	}

	return b.loadEvents(ctx, stream, loadQuery{after: after, limit: opts.Limit})
}
