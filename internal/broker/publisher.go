// Package broker publishes committed ledger events to NATS JetStream for downstream
// consumers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	DefaultStream        = "DSC_EVENTS"
	DefaultSubjectPrefix = "dsc.events"
)

type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
}

// Publisher writes events to subjects of the form <prefix>.<event_type>[.<asset>].
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *zap.SugaredLogger
}

// Connect dials NATS, ensures the outbound stream exists and returns a publisher.
func Connect(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Publisher, error) {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("dsc-ledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := EnsureStream(ctx, js, cfg.Stream, cfg.SubjectPrefix); err != nil {
		nc.Close()
		return nil, err
	}
	logger.Infow("Ensured outbound stream", "stream", cfg.Stream, "subjects", cfg.SubjectPrefix+".>")

	p := NewPublisher(js, cfg.SubjectPrefix, logger)
	p.nc = nc
	return p, nil
}

func NewPublisher(js jetstream.JetStream, prefix string, logger *zap.SugaredLogger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{js: js, prefix: prefix, logger: logger}
}

// EnsureStream creates or updates the stream that captures every subject under prefix.
func EnsureStream(ctx context.Context, js jetstream.JetStream, stream, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       stream,
		Subjects:   []string{prefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Replicas:   1,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}

// Subject returns the subject an event is published on.
func Subject(prefix string, e domain.Event) string {
	subject := prefix + "." + token(string(e.Type))
	if e.Asset != "" {
		subject += "." + token(e.Asset)
	}
	return subject
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

func token(s string) string {
	return tokenReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// Publish sends e with its id as the JetStream message id, so a retried publish is
// deduplicated by the server.
func (p *Publisher) Publish(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(Subject(p.prefix, e))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, e.ID)

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

// Close drains the connection when the publisher owns it.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
