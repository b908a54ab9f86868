package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"coldchain-monitor/internal/metrics"
)

// Handler zpracuje jednu zprávu. Implementuje ho Coordinator.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

// Sequencer garantuje pořadí zpracování per zařízení, explicitně na hranici
// transportu (nespoléháme na pořadí doručení uvnitř MQTT klienta).
//
// Každé zařízení má vlastní "lane": buffered kanál + jednu goroutinu, která
// ho sekvenčně vyprazdňuje. Teplotní eskalace je duration-based, takže
// prohozené pořadí by rozbilo výpočet délky excursion. Mezi zařízeními
// žádný sdílený stav není - lanes běží nezávisle.
type Sequencer struct {
	handler Handler
	logger  *slog.Logger

	// fallback device pro zprávy bez device_id (plná validace
	// proběhne až v Coordinatoru, tady jen routing).
	fallbackDevice string
	laneBuffer     int

	mu     sync.Mutex
	lanes  map[string]chan []byte
	closed bool
	wg     sync.WaitGroup
}

func NewSequencer(handler Handler, fallbackDevice string, laneBuffer int, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		handler:        handler,
		logger:         logger,
		fallbackDevice: fallbackDevice,
		laneBuffer:     laneBuffer,
		lanes:          make(map[string]chan []byte),
	}
}

// Enqueue zařadí zprávu do fronty jejího zařízení. Nikdy neblokuje -
// plná lane znamená zahození zprávy (warn + counter). Doručovací smyčku
// MQTT klienta nesmíme zdržet déle, než trvají DB round-tripy.
func (s *Sequencer) Enqueue(payload []byte) {
	deviceID := peekDeviceID(payload, s.fallbackDevice)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	lane, ok := s.lanes[deviceID]
	if !ok {
		lane = make(chan []byte, s.laneBuffer)
		s.lanes[deviceID] = lane

		// Jedna goroutina na zařízení = garantované pořadí v rámci zařízení.
		s.wg.Add(1)
		go s.drain(lane)
	}

	select {
	case lane <- payload:
	default:
		metrics.MessagesDropped.WithLabelValues("lane_full").Inc()
		s.logger.Warn("Fronta zařízení plná, zahazuji zprávu", "device_id", deviceID)
	}
}

// Close zavře všechny lanes a počká na dozpracování zbylých zpráv.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, lane := range s.lanes {
		close(lane)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sequencer) drain(lane chan []byte) {
	defer s.wg.Done()
	for payload := range lane {
		// Chyby řeší (loguje, počítá) Handler sám - tady jedeme dál,
		// jedna vadná zpráva nesmí zastavit stream.
		_ = s.handler.Handle(context.Background(), payload)
	}
}

// peekDeviceID vytáhne z payloadu jen device_id kvůli routingu.
// Nevalidní JSON tady neřešíme - pošleme ho do fallback lane a odmítne
// ho až dekodér Coordinatoru (se správným logem a counterem).
func peekDeviceID(payload []byte, fallback string) string {
	var peek struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(payload, &peek); err != nil || peek.DeviceID == "" {
		return fallback
	}
	return peek.DeviceID
}
