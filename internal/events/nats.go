package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// publishConn is the slice of *nats.Conn the publisher needs. Narrowed for
// tests.
type publishConn interface {
	Publish(subject string, data []byte) error
}

var _ publishConn = (*nats.Conn)(nil)

// wireEvent is the JSON payload published for each lifecycle event.
type wireEvent struct {
	Name  string    `json:"name"`
	Time  time.Time `json:"time"`
	Error string    `json:"error,omitempty"`
}

// Publisher bridges an Emitter onto NATS subjects of the form
// "<prefix>.<event name>". Publish failures are logged and dropped; the
// lifecycle must not stall on a slow broker.
type Publisher struct {
	conn   publishConn
	prefix string
	logger *slog.Logger
	stop   func()
}

// NewPublisher subscribes to the emitter and starts forwarding. Close
// detaches it.
func NewPublisher(conn publishConn, prefix string, emitter *Emitter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{conn: conn, prefix: prefix, logger: logger}
	p.stop = emitter.Subscribe(p.forward)
	return p
}

// Subject returns the NATS subject for an event name.
func (p *Publisher) Subject(name Name) string {
	if p.prefix == "" {
		return string(name)
	}
	return p.prefix + "." + string(name)
}

func (p *Publisher) forward(evt Event) {
	w := wireEvent{Name: string(evt.Name), Time: evt.Time}
	if evt.Err != nil {
		w.Error = evt.Err.Error()
	}

	data, err := json.Marshal(w)
	if err != nil {
		p.logger.Error("marshal lifecycle event", "event", string(evt.Name), "error", err)
		return
	}
	if err := p.conn.Publish(p.Subject(evt.Name), data); err != nil {
		p.logger.Warn("publish lifecycle event", "event", string(evt.Name), "error", err)
	}
}

// Close stops forwarding events. It does not close the NATS connection,
// which the caller owns.
func (p *Publisher) Close() {
	p.stop()
}
