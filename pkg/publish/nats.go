// Package publish sends pair signals to NATS as JSON.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

// Conn is the subset of *nats.Conn used by Publisher.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Envelope 发布到 NATS 的消息体
type Envelope struct {
	TrackerID     uuid.UUID         `json:"tracker_id"`
	Pair          string            `json:"pair"`
	RegimeChanged bool              `json:"regime_changed"`
	Signal        signal.PairSignal `json:"signal"`
	PublishedAt   time.Time         `json:"published_at"`
}

// Publisher 把每个信号以 JSON 发布到 <prefix>.<symbol1>.<symbol2>
// Publisher implements signal.Observer.
type Publisher struct {
	conn   Conn
	prefix string
	logger zerolog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// Connect 连接 NATS
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("statarb"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// NewPublisher 创建发布器
func NewPublisher(conn Conn, prefix string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Subject 追踪器名称 "AU/AG" 对应的主题
// Characters NATS reserves inside a token are replaced by '_'.
func (p *Publisher) Subject(pair string) string {
	parts := strings.Split(pair, "/")
	for i, s := range parts {
		parts[i] = sanitizeToken(s)
	}
	return p.prefix + "." + strings.Join(parts, ".")
}

// Publish 发布单个信号
func (p *Publisher) Publish(ev signal.Event) error {
	data, err := json.Marshal(Envelope{
		TrackerID:     ev.TrackerID,
		Pair:          ev.Tracker,
		RegimeChanged: ev.RegimeChanged,
		Signal:        ev.Signal,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	subject := p.Subject(ev.Tracker)
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	p.published.Add(1)
	return nil
}

// ObserveSignal publishes the event and logs failures.
func (p *Publisher) ObserveSignal(ev signal.Event) {
	if err := p.Publish(ev); err != nil {
		p.logger.Warn().Err(err).Str("pair", ev.Tracker).Msg("signal publish failed")
	}
}

// Stats 已发布与失败的消息数
func (p *Publisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

func sanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
