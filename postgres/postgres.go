// Package postgres implements eventstore.Broker on top of a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/shogotsuneto/go-rollups-broker"
)

// DefaultTableName is the table used when Config.TableName is empty.
const DefaultTableName = "rollups_stream_entries"

// DefaultPollInterval is how often ConsumeAfter re-queries while waiting.
const DefaultPollInterval = 100 * time.Millisecond

// Config holds the PostgreSQL specific settings.
type Config struct {
	eventstore.Config

	// TableName is the table holding the entries of all streams
	TableName string
	// PollInterval is the query interval of a waiting ConsumeAfter
	PollInterval time.Duration
}

// quoteIdentifier quotes a PostgreSQL identifier, escaping embedded double quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// InitSchema creates the entries table and its indexes if they don't exist.
func InitSchema(ctx context.Context, db *sql.DB, tableName string) error {
	if tableName == "" {
		return errors.New("table name must not be empty")
	}

	table := quoteIdentifier(tableName)
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		stream_id VARCHAR(255) NOT NULL,
		version BIGINT NOT NULL,
		event_data BYTEA NOT NULL,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(stream_id, version);
	`, table,
		quoteIdentifier("idx_"+tableName+"_stream_version"), table)

	_, err := db.ExecContext(ctx, query)
	return err
}

// Connect opens the database and pings it with exponential backoff until it
// answers or the backoff budget is spent.
func Connect(ctx context.Context, config Config) (*PostgresBroker, error) {
	db, err := sql.Open("postgres", config.Endpoint)
	if err != nil {
		return nil, &eventstore.ConnectionError{
			Endpoint: eventstore.RedactEndpoint(config.Endpoint),
			Err:      fmt.Errorf("failed to open database connection: %w", err),
		}
	}

	if err := eventstore.Connect(ctx, config.Endpoint, config.BackoffMaxElapsed, db.PingContext, nil); err != nil {
		_ = db.Close()
		return nil, err
	}

	broker, err := NewPostgresBroker(db, config)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return broker, nil
}
