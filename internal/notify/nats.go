package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config selects the NATS server and delivery mode.
type Config struct {
	URL     string
	Subject string
	// JetStream publishes with acknowledgement instead of core NATS.
	JetStream bool
	// KVBucket, when set, additionally stores the latest summary per site
	// in a JetStream key/value bucket.
	KVBucket string
	Site     string
}

// NATSPublisher publishes through a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
	kv   jetstream.KeyValue
	cfg  Config
}

// NewNATSPublisher connects to cfg.URL.
func NewNATSPublisher(ctx context.Context, cfg Config) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("sitebuilder"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := &NATSPublisher{conn: conn, cfg: cfg}
	if cfg.JetStream || cfg.KVBucket != "" {
		if p.js, err = jetstream.New(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
	}
	if cfg.KVBucket != "" {
		if err := p.initKVBucket(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize KV bucket: %w", err)
		}
	}
	slog.Info("NATS publisher initialized",
		"url", cfg.URL,
		"jetstream", cfg.JetStream,
		"kv_bucket", cfg.KVBucket)
	return p, nil
}

// initKVBucket creates or gets the bucket holding the latest summaries.
func (p *NATSPublisher) initKVBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := p.js.KeyValue(ctx, p.cfg.KVBucket)
	if err == nil {
		p.kv = kv
		return nil
	}
	kv, err = p.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      p.cfg.KVBucket,
		Description: "Latest sitebuilder run summaries",
		History:     1,
	})
	if err != nil {
		return fmt.Errorf("failed to create KV bucket: %w", err)
	}
	p.kv = kv
	return nil
}

// Publish sends data to subject and, when configured, stores it as the
// latest summary of the site.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.cfg.JetStream {
		if _, err := p.js.Publish(ctx, subject, data); err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}
	} else {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}
		if err := p.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("failed to flush: %w", err)
		}
	}
	if p.kv != nil {
		key := p.cfg.Site
		if key == "" {
			key = "default"
		}
		if _, err := p.kv.Put(ctx, key, data); err != nil {
			return fmt.Errorf("failed to store summary: %w", err)
		}
	}
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
