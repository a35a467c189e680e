package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func frame(schemaID uint32, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func changeRecord(offset int64, eventType, owner string, value []byte) kafka.Message {
	return kafka.Message{
		Topic:  "activity_changes",
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "owner_id", Value: []byte(owner)},
			{Key: "schema_subject", Value: []byte(eventType + "-value")},
		},
	}
}

func runProcessor(t *testing.T, reader Reader, handler Handler) {
	t.Helper()
	proc := NewProcessor(reader, handler, log.New(testLog{t}, "", 0))
	err := proc.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"activity_id":"abc","owner_id":"owner-1"}`)
	reader := newFakeReader(changeRecord(10, "activity.created", "owner-1", frame(42, payload)))
	handler := &captureHandler{}

	runProcessor(t, reader, handler)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commits)
	require.Equal(t, "activity.created", handler.last.EventType)
	require.Equal(t, "owner-1", handler.last.OwnerID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	payload := []byte(`{"activity_id":"def","owner_id":"owner-2"}`)
	reader := newFakeReader(changeRecord(20, "activity.completion_changed", "owner-2", frame(99, payload)))
	handler := &captureHandler{err: errors.New("boom")}

	runProcessor(t, reader, handler)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commits)
}

func TestProcessorCommitsPoisonPill(t *testing.T) {
	// A two-byte value cannot carry the five-byte frame header.
	reader := newFakeReader(changeRecord(30, "activity.deleted", "owner-3", []byte{0x01, 0x02}))
	handler := &captureHandler{}

	runProcessor(t, reader, handler)

	// Undecodable frames are committed without reaching the handler so the
	// partition keeps draining.
	require.Equal(t, 0, handler.calls)
	require.Equal(t, 1, reader.commits)
}

// fakeReader replays its records once and then reports cancellation, which
// ends Run.
type fakeReader struct {
	pending []kafka.Message
	commits int
}

func newFakeReader(records ...kafka.Message) *fakeReader {
	return &fakeReader{pending: records}
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.pending) == 0 {
		return kafka.Message{}, context.Canceled
	}
	next := r.pending[0]
	r.pending = r.pending[1:]
	return next, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commits++
	return nil
}

func (r *fakeReader) Close() error { return nil }

type captureHandler struct {
	calls int
	err   error
	last  Message
}

func (h *captureHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testLog struct {
	t *testing.T
}

func (l testLog) Write(p []byte) (int, error) {
	l.t.Log(string(p))
	return len(p), nil
}
