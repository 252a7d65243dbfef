package facade

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shogotsuneto/go-rollups-broker"
	"github.com/shogotsuneto/go-rollups-broker/memory"
	"github.com/shogotsuneto/go-rollups-broker/postgres"
	"github.com/shogotsuneto/go-rollups-broker/redis"
)

// Dial connects to the broker backend selected by the endpoint scheme.
func Dial(ctx context.Context, config eventstore.Config, postgresTable string) (eventstore.Broker, error) {
	u, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, &eventstore.ConnectionError{
			Endpoint: eventstore.RedactEndpoint(config.Endpoint),
			Err:      err,
		}
	}

	switch u.Scheme {
	case "redis", "rediss":
		return redis.Connect(ctx, config)
	case "postgres", "postgresql":
		return postgres.Connect(ctx, postgres.Config{
			Config:    config,
			TableName: postgresTable,
		})
	case "memory":
		return memory.NewInMemoryBroker(config.ConsumeTimeout), nil
	default:
		return nil, &eventstore.ConnectionError{
			Endpoint: eventstore.RedactEndpoint(config.Endpoint),
			Err:      fmt.Errorf("unsupported broker scheme %q", u.Scheme),
		}
	}
}
