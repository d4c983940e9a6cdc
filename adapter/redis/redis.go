// Package redis publishes pack-change events on a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "urlcustomdiscs:pack_changed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Payload encodings.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel (default urlcustomdiscs:pack_changed).
	Channel string
	// Encoding is json (default) or msgpack.
	Encoding string
	// Timeout bounds each PUBLISH (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. Returns an error if the URL is empty or
// invalid, or the encoding is unknown.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Encoding {
	case "":
		cfg.Encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return nil, fmt.Errorf("redis adapter: unknown encoding %q", cfg.Encoding)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Encode serializes event with the configured encoding.
func (a *Adapter) Encode(event *adapter.PackChangedEvent) ([]byte, error) {
	if a.config.Encoding == EncodingMsgpack {
		return msgpack.Marshal(event)
	}
	return json.Marshal(event)
}

// Publish sends the event to the configured channel, retrying with
// exponential backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.PackChangedEvent) error {
	body, err := a.Encode(event)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, nil, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, a.config.Channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
