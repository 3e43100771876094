package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/store"
)

// Publisher hands an admitted prospect to campaign generation.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, pr model.Prospect) error
}

// StorePublisher queues admitted prospects in the outreach_queue table.
type StorePublisher struct {
	store store.Store
	now   func() time.Time
}

// NewStorePublisher creates a publisher backed by s.
func NewStorePublisher(s store.Store) *StorePublisher {
	return &StorePublisher{store: s, now: time.Now}
}

func (p *StorePublisher) Name() string { return "outreach_queue" }

// Publish appends one queue entry.
func (p *StorePublisher) Publish(ctx context.Context, pr model.Prospect) error {
	rec := store.Record{
		"domain":         pr.Domain,
		"company_name":   pr.CompanyName,
		"pain_score":     pr.PainScore,
		"primary_edp":    pr.PrimaryEDP,
		"segment":        string(pr.Segment),
		"recommendation": pr.Recommendation,
		"run_id":         pr.RunID,
		"queued_at":      p.now().UTC().Format(time.RFC3339),
	}
	if err := p.store.Append(ctx, store.TableOutreachQueue, rec); err != nil {
		return fmt.Errorf("publish %s to %s: %w", pr.Domain, p.Name(), err)
	}
	return nil
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher emits admitted prospects as JSON messages on a subject.
type NATSPublisher struct {
	conn    Conn
	subject string
}

// NewNATSPublisher creates a publisher on subject.
func NewNATSPublisher(conn Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) Name() string { return "nats" }

// ProspectMessage is the body of an admission event.
type ProspectMessage struct {
	EventType string         `json:"event_type"`
	Prospect  model.Prospect `json:"prospect"`
}

// Publish sends one message. The connection buffers and flushes on its own.
func (p *NATSPublisher) Publish(ctx context.Context, pr model.Prospect) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ProspectMessage{EventType: "prospect_admitted", Prospect: pr})
	if err != nil {
		return fmt.Errorf("marshal prospect %s: %w", pr.Domain, err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s to %s: %w", pr.Domain, p.subject, err)
	}
	return nil
}

// ConnectNATS dials the broker, reconnecting indefinitely after the first
// successful connection.
func ConnectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	logger = logging.OrDefault(logger)

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}
