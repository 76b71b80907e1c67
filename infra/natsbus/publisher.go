// Package natsbus publishes board events on NATS subjects.
package natsbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/infra/logger"
)

// Config holds the NATS connection settings.
type Config struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	SubjectPrefix string `json:"subject_prefix"`
	// ConnectTimeoutMS bounds the initial dial.
	ConnectTimeoutMS int `json:"connect_timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "haulboard"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "haulboard"
	}
	if c.ConnectTimeoutMS == 0 {
		c.ConnectTimeoutMS = 2000
	}
}

// Publisher implements notify.Publisher. Events go to <prefix>.<topic>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	log    logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ notify.Publisher = (*Publisher)(nil)

// Connect dials the server described by cfg.
func Connect(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	log := logger.New("nats_publisher")
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(time.Duration(cfg.ConnectTimeoutMS)*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(nc, cfg.SubjectPrefix, log), nil
}

// New wraps an existing connection.
func New(nc *nats.Conn, prefix string, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Publisher{nc: nc, prefix: strings.TrimSuffix(prefix, "."), log: log}
}

func (p *Publisher) subject(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "." + topic
}

// Publish sends payload and waits for the server to acknowledge the flush,
// bounded by ctx.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.nc.IsClosed() {
		return notify.ErrClosed
	}
	subj := p.subject(topic)
	if err := p.nc.Publish(subj, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subj, err)
	}
	return nil
}

// Subscribe delivers the raw events of the given topics, plus board-wide
// broadcasts, to fn.
func (p *Publisher) Subscribe(topics []string, fn func(topic string, payload []byte)) error {
	topics = append(append([]string(nil), topics...), notify.BroadcastTopic)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range topics {
		sub, err := p.nc.Subscribe(p.subject(t), func(m *nats.Msg) {
			fn(m.Subject, m.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
		p.subs = append(p.subs, sub)
	}
	return p.nc.Flush()
}

// Close drains subscriptions and closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nc.IsClosed() {
		return nil
	}
	for _, s := range p.subs {
		_ = s.Unsubscribe()
	}
	p.subs = nil
	if err := p.nc.FlushTimeout(time.Second); err != nil {
		p.log.Warnf("flush on close: %v", err)
	}
	p.nc.Close()
	return nil
}
