package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures a BreakerStore.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultBreakerSettings trips after five consecutive failures and lets one
// call through again after thirty seconds.
var DefaultBreakerSettings = BreakerSettings{
	MaxFailures: 5,
	Interval:    time.Minute,
	Timeout:     30 * time.Second,
}

// BreakerStore wraps an ObjectStore with a circuit breaker. While open,
// calls fail fast with common.ErrStorageUnavailable. A missing object or an
// unreadable upload body is the caller's problem, not the store's, and does
// not count toward tripping.
type BreakerStore struct {
	next ObjectStore
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next ObjectStore, s BreakerSettings, logger logging.Logger) *BreakerStore {
	st := gobreaker.Settings{
		Name:        "object-store",
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, common.ErrorNotFound) ||
				errors.Is(err, common.ErrUploadBody) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Put(ctx, key, contentType, body)
	})
	return breakerErr(err)
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.([]byte), nil
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return breakerErr(err)
}

// State is the gobreaker state name, e.g. "open".
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return err
}
