// Package publish sends extracted triples to NATS, one message per sentence.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brunobiangulo/depfacts/extract"
	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "depfacts.triples"

// Config configures the NATS connection.
type Config struct {
	URL           string        `json:"url" yaml:"url"`
	SubjectPrefix string        `json:"subject_prefix" yaml:"subject_prefix"`
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
}

// SentenceMessage is the payload published for each sentence.
type SentenceMessage struct {
	Document    int64            `json:"document"`
	Path        string           `json:"path"`
	RunID       string           `json:"run_id,omitempty"`
	Sentence    int              `json:"sentence"`
	Text        string           `json:"text"`
	Triples     []extract.Triple `json:"triples"`
	PublishedAt time.Time        `json:"published_at"`
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher publishes sentence messages. A nil *Publisher is valid and
// publishes nothing.
type Publisher struct {
	conn   Conn
	prefix string
	now    func() time.Time
}

// Connect dials NATS and returns a Publisher.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("depfacts"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("publish: nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("publish: nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("publish: connected to nats", "url", nc.ConnectedUrl())
	return New(nc, cfg.SubjectPrefix), nil
}

// New wraps an existing connection.
func New(conn Conn, subjectPrefix string) *Publisher {
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: subjectPrefix, now: time.Now}
}

// Subject returns the subject messages for a document are published on.
func (p *Publisher) Subject(docID int64) string {
	return p.prefix + "." + strconv.FormatInt(docID, 10)
}

// PublishSentence publishes one sentence's triples.
func (p *Publisher) PublishSentence(ctx context.Context, msg SentenceMessage) error {
	if p == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if msg.Triples == nil {
		msg.Triples = []extract.Triple{}
	}
	msg.PublishedAt = p.now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal sentence message: %w", err)
	}
	if err := p.conn.Publish(p.Subject(msg.Document), data); err != nil {
		return fmt.Errorf("publish sentence %d: %w", msg.Sentence, err)
	}
	return nil
}

// Flush waits until the server has processed all published messages.
func (p *Publisher) Flush(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.conn.FlushWithContext(ctx)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.conn.FlushWithContext(ctx)
	p.conn.Close()
	return err
}
