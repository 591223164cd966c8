package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestPublisherSubjects(t *testing.T) {
	t.Parallel()

	p := &Publisher{prefix: "mongokit.lifecycle"}
	assert.Equal(t, "mongokit.lifecycle.connected", p.Subject(Connected))

	p = &Publisher{}
	assert.Equal(t, "reset", p.Subject(Reset))
}

func TestPublisherForwardsEvents(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter(nil)
	conn := &fakeConn{}
	p := NewPublisher(conn, "db", emitter, nil)

	emitter.Emit(Event{Name: Connected})
	emitter.Emit(Event{Name: Error, Err: errors.New("ping timeout")})

	require.Len(t, conn.subjects, 2)
	assert.Equal(t, []string{"db.connected", "db.error"}, conn.subjects)

	var w wireEvent
	require.NoError(t, json.Unmarshal(conn.payloads[1], &w))
	assert.Equal(t, "error", w.Name)
	assert.Equal(t, "ping timeout", w.Error)
	assert.False(t, w.Time.IsZero())

	p.Close()
	emitter.Emit(Event{Name: Disconnected})
	assert.Len(t, conn.subjects, 2, "closed publisher stops forwarding")
}

func TestPublisherSwallowsPublishErrors(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter(nil)
	conn := &fakeConn{err: errors.New("no responders")}
	NewPublisher(conn, "db", emitter, nil)

	assert.NotPanics(t, func() { emitter.Emit(Event{Name: Reset}) })
}
