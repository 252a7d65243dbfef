package eventstore

import (
	"context"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Connect calls ping with exponential backoff until it succeeds or
// maxElapsed has passed. A non-positive maxElapsed makes a single attempt.
// The failure is returned as a *ConnectionError and never retried afterwards.
func Connect(ctx context.Context, endpoint string, maxElapsed time.Duration, ping func(context.Context) error, notify backoff.Notify) error {
	started := time.Now()

	var policy backoff.BackOff
	if maxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = maxElapsed
		policy = exp
	} else {
		policy = &backoff.StopBackOff{}
	}

	err := backoff.RetryNotify(func() error {
		return ping(ctx)
	}, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		return &ConnectionError{
			Endpoint: RedactEndpoint(endpoint),
			Elapsed:  time.Since(started),
			Err:      err,
		}
	}

	return nil
}

// RedactEndpoint hides the password of an endpoint URL so it can be logged.
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Redacted()
}
