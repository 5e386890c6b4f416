package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// NATSConfig holds configuration for the JetStream-backed conversation store.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string

	// Name is the client name for identifying this connection
	Name string

	// Bucket is the key-value bucket holding conversation history.
	// Default: "conversations"
	Bucket string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for unlimited reconnects.
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration

	// Timeout is the connection timeout
	Timeout time.Duration
}

// DefaultNATSConfig returns a configuration with sensible defaults.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Name:          "minerva-memory",
		Bucket:        "conversations",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSStore persists conversation history in a JetStream key-value bucket,
// one key per session holding the full message list as JSON.
type NATSStore struct {
	nc     *nats.Conn
	kv     nats.KeyValue
	logger *zap.Logger
}

// NewNATSStore connects to NATS and binds the conversation bucket, creating
// it when it does not exist yet.
func NewNATSStore(ctx context.Context, cfg NATSConfig, logger *zap.Logger) (*NATSStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "conversations"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	connected := make(chan *nats.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		nc, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			errCh <- err
			return
		}
		connected <- nc
	}()

	var nc *nats.Conn
	select {
	case nc = <-connected:
	case err := <-errCh:
		return nil, fmt.Errorf("connect to NATS: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open JetStream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "conversation history per session",
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind conversation bucket: %w", err)
	}

	logger.Info("conversation store ready",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket))
	return &NATSStore{nc: nc, kv: kv, logger: logger}, nil
}

// Load returns the session's most recent messages, oldest first. Missing
// sessions yield an empty history.
func (s *NATSStore) Load(_ context.Context, sessionID string, limit int) ([]state.Message, error) {
	entry, err := s.kv.Get(sessionID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var msgs []state.Message
	if err := json.Unmarshal(entry.Value(), &msgs); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Save appends the message to the session's history, creating the session
// key on first write.
func (s *NATSStore) Save(ctx context.Context, sessionID string, msg state.Message) error {
	existing, err := s.Load(ctx, sessionID, 0)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(append(existing, msg))
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if _, err := s.kv.Put(sessionID, payload); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

var _ Store = (*NATSStore)(nil)
