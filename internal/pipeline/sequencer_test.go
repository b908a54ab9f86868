package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler zaznamenává pořadí zpráv per zařízení.
type recordingHandler struct {
	mu      sync.Mutex
	byDevice map[string][]int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{byDevice: make(map[string][]int)}
}

func (h *recordingHandler) Handle(ctx context.Context, payload []byte) error {
	var msg struct {
		DeviceID string `json:"device_id"`
		Seq      int    `json:"seq"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	h.mu.Lock()
	h.byDevice[msg.DeviceID] = append(h.byDevice[msg.DeviceID], msg.Seq)
	h.mu.Unlock()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPerDeviceOrdering(t *testing.T) {
	h := newRecordingHandler()
	s := NewSequencer(h, "cargo-01", 64, testLogger())

	// Prokládáme zprávy dvou zařízení - pořadí v rámci zařízení
	// musí zůstat zachované.
	const n = 50
	for i := 0; i < n; i++ {
		s.Enqueue([]byte(fmt.Sprintf(`{"device_id": "cargo-A", "seq": %d}`, i)))
		s.Enqueue([]byte(fmt.Sprintf(`{"device_id": "cargo-B", "seq": %d}`, i)))
	}
	s.Close()

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, h.byDevice["cargo-A"])
	assert.Equal(t, want, h.byDevice["cargo-B"])
}

func TestFallbackDeviceLane(t *testing.T) {
	h := newRecordingHandler()
	s := NewSequencer(h, "cargo-01", 8, testLogger())

	// Zpráva bez device_id jde do fallback lane.
	s.Enqueue([]byte(`{"seq": 1}`))
	// Nevalidní JSON taky - odmítnutí řeší až Coordinator.
	s.Enqueue([]byte(`rozbité`))
	s.Close()

	// Druhá zpráva skončí chybou v handleru (nevalidní JSON),
	// první musí dorazit pod fallback identitou.
	assert.Equal(t, []int{1}, h.byDevice["cargo-01"])
}

// blockingHandler drží zpracování, dokud test neuvolní gate.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	handled int
	mu      sync.Mutex
}

func (h *blockingHandler) Handle(ctx context.Context, payload []byte) error {
	h.started <- struct{}{}
	<-h.release
	h.mu.Lock()
	h.handled++
	h.mu.Unlock()
	return nil
}

func TestFullLaneDropsInsteadOfBlocking(t *testing.T) {
	h := &blockingHandler{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	s := NewSequencer(h, "cargo-01", 1, testLogger())

	payload := []byte(`{"temperature": 5.0}`)

	// První zprávu si goroutina vezme a zablokuje se v handleru.
	s.Enqueue(payload)
	<-h.started

	// Druhá naplní buffer (kapacita 1), třetí se musí zahodit -
	// Enqueue se nikdy nesmí zablokovat.
	s.Enqueue(payload)
	s.Enqueue(payload)

	close(h.release)
	s.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, 2, h.handled)
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	h := newRecordingHandler()
	s := NewSequencer(h, "cargo-01", 8, testLogger())
	s.Close()

	// Nesmí panikařit (send na zavřený kanál) ani nic zpracovat.
	s.Enqueue([]byte(`{"device_id": "cargo-A", "seq": 1}`))

	assert.Empty(t, h.byDevice)
}
