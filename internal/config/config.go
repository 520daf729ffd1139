// Package config resolves runtime configuration that is not carried on the
// command line, most notably the cloud connection string stored by the
// device provisioning layer.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultConnectionStringKey is where the provisioning layer stores the
// device connection string.
const DefaultConnectionStringKey = "/sys/iot/connection_string"

const (
	dialTimeout    = 5 * time.Second
	requestTimeout = 5 * time.Second
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
)

// ErrNotFound means the key is absent or empty, i.e. the device has not
// been provisioned yet.
var ErrNotFound = errors.New("config: key not found")

// Store reads configuration values from an etcd cluster.
type Store struct {
	endpoints []string
	logger    *slog.Logger
}

// NewStore returns a Store for the given etcd endpoints.
func NewStore(endpoints []string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{endpoints: endpoints, logger: logger}
}

// ConnectionString fetches the device connection string from key, retrying
// with capped exponential backoff until a value is present or ctx is
// cancelled. An empty key selects DefaultConnectionStringKey.
func (s *Store) ConnectionString(ctx context.Context, key string) (string, error) {
	if key == "" {
		key = DefaultConnectionStringKey
	}

	backoff := backoffInitial
	for {
		v, err := s.get(ctx, key)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		s.logger.Warn("connection string unavailable, retrying",
			"key", key, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   s.endpoints,
		DialTimeout: dialTimeout,
		Context:     ctx,
	})
	if err != nil {
		return "", fmt.Errorf("config: connect: %w", err)
	}
	defer cli.Close()

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := cli.Get(rctx, key)
	if err != nil {
		return "", fmt.Errorf("config: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 || len(resp.Kvs[0].Value) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return string(resp.Kvs[0].Value), nil
}
