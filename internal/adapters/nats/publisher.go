package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

const (
	// StreamName is the JetStream stream holding scan events.
	StreamName = "OVERLAP_SCANS"
	// SubjectScanCompleted prefixes completion events; the source name is appended.
	SubjectScanCompleted = "overlap.scans.completed"
)

// ScanCompletedSubject returns the subject for a run from source.
func ScanCompletedSubject(source string) string {
	return SubjectScanCompleted + "." + source
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(conn)
}

// newPublisher takes ownership of conn and closes it on failure.
func newPublisher(conn *nats.Conn, jsOpts ...nats.JSOpt) (*Publisher, error) {
	js, err := conn.JetStream(jsOpts...)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	cfg := nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"overlap.scans.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist; update it instead
		if _, err := js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishScanCompleted publishes the event on overlap.scans.completed.<source>.
func (p *Publisher) PublishScanCompleted(ctx context.Context, event *domain.ScanCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ScanCompletedSubject(event.Source), data, nats.Context(ctx), nats.MsgId(event.RunID.String()))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
