package cache

import (
	"context"
	"time"
)

// NoopStore satisfies Store without keeping anything.
type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) Name() string { return "noop" }

func (NoopStore) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }

func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopStore) DeletePrefix(context.Context, string) (int, error) { return 0, nil }

func (NoopStore) Ping(context.Context) error { return nil }
