package ops

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/circuit"
)

type message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []message
	err      error
	calls    int
}

func (f *fakeProducer) ProduceRecord(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message{Topic: topic, Key: key, Value: value, Headers: headers})
	return nil
}

func TestPublisher_ExportsShiftContract(t *testing.T) {
	producer := &fakeProducer{}
	p := New(producer, "ops.shift-events")

	p.Export(audit.Event{
		ID:            uuid.New(),
		Action:        audit.ActionShiftSwitch,
		StationID:     "S2",
		OperatorID:    "O1",
		FromStationID: "S1",
		ToStationID:   "S2",
		Timestamp:     time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC),
	})
	p.Close()

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, "ops.shift-events", msg.Topic)
	assert.Equal(t, []byte("S2"), msg.Key)
	assert.Equal(t, "SHIFT_SWITCH", msg.Headers["event_type"])

	var got ShiftEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "SHIFT_SWITCH", got.EventType)
	assert.Equal(t, "S1", got.FromStationID)
	assert.Equal(t, "S2", got.ToStationID)
	assert.Nil(t, got.Metadata)
}

func TestToShiftEvent_ScanMetadata(t *testing.T) {
	nonce := id.NewNonce()
	got := ToShiftEvent(audit.Event{
		Action:     audit.ActionScanPerformed,
		StationID:  "S1",
		OperatorID: "O1",
		TokenNonce: &nonce,
		Decision:   "NO",
		Reason:     "USED",
	})
	assert.Equal(t, "SCAN_PERFORMED", got.EventType)
	assert.Equal(t, "NO", got.Metadata["decision"])
	assert.Equal(t, "USED", got.Metadata["reason"])
	assert.Equal(t, nonce.String(), got.Metadata["token_nonce"])
}

func TestPublisher_CircuitOpensOnFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	p := New(producer, "t", WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))

	for range 5 {
		p.Export(audit.Event{Action: audit.ActionShiftEnd, StationID: "S1"})
	}
	p.Close()

	assert.Equal(t, 2, producer.calls, "breaker stops producing once open")
}
