package mqttlog

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Writer implementuje io.Writer nad MQTT klientem. Vše, co do něj slog
// zapíše, letí na topic logs/<service> - odtud si to sbírá log-collector.
// Používá se přes io.MultiWriter společně se stdout.
type Writer struct {
	client mqtt.Client
	topic  string
}

func NewWriter(client mqtt.Client, serviceName string) *Writer {
	return &Writer{
		client: client,
		topic:  fmt.Sprintf("logs/%s", serviceName),
	}
}

// Write odešle jeden log řádek do MQTT.
// Na token NEČEKÁME (fire-and-forget) - logování nesmí brzdit pipeline.
func (w *Writer) Write(p []byte) (n int, err error) {
	// Payload musíme zkopírovat, slice 'p' může volající znovu použít.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}
