// Package nats_bridge relays terminal job events between service instances over
// NATS core subjects.
package nats_bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
)

const subjectPrefix = "scrape.jobs."

// Injector accepts events that originated elsewhere.
type Injector interface {
	Inject(ctx context.Context, evt entity.JobEvent) error
}

type message struct {
	Origin string          `json:"origin"`
	Event  entity.JobEvent `json:"event"`
}

// Bridge publishes local events and injects the ones other instances publish.
type Bridge struct {
	nc     *nats.Conn
	origin string
	logger *zap.Logger
}

func Connect(url string, logger *zap.Logger) (*Bridge, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("scrape-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Bridge{nc: nc, origin: uuid.NewString(), logger: logger}, nil
}

// Deliver publishes evt on the job's subject.
func (b *Bridge) Deliver(_ context.Context, evt entity.JobEvent) error {
	data, err := encode(b.origin, evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(subjectPrefix+evt.JobID, data)
}

// Listen injects events published by other instances until ctx is done.
func (b *Bridge) Listen(ctx context.Context, into Injector) error {
	sub, err := b.nc.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		evt, ok, err := decode(b.origin, msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed job event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if err := into.Inject(ctx, evt); err != nil {
			b.logger.Debug("remote event not injected", zap.String("job_id", evt.JobID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s*: %w", subjectPrefix, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return nil
}

func (b *Bridge) Close() {
	b.nc.Close()
}

func encode(origin string, evt entity.JobEvent) ([]byte, error) {
	return json.Marshal(message{Origin: origin, Event: evt})
}

// decode reports ok=false for events this instance published itself.
func decode(origin string, data []byte) (entity.JobEvent, bool, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return entity.JobEvent{}, false, err
	}
	if m.Event.JobID == "" {
		return entity.JobEvent{}, false, fmt.Errorf("event without job id")
	}
	return m.Event, m.Origin != origin, nil
}
