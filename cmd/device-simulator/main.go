package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"coldchain-monitor/internal/config"
	"coldchain-monitor/internal/model"
)

// Interval publikace - reálné zařízení posílá vzorek každých pár sekund.
const publishInterval = 5 * time.Second

// Pravděpodobnost simulované poruchy (vysoká teplota, stojící ventilátor, náraz).
const failureChance = 0.1

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID("device-simulator")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("MQTT connection failed", "error", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	// Posloucháme i alert topic - ať je vidět, jak cloud reaguje
	// (stejně jako skutečné zařízení řídí chlazení podle probability).
	alertHandler := func(client mqtt.Client, msg mqtt.Message) {
		var alert model.AlertPayload
		if err := json.Unmarshal(msg.Payload(), &alert); err != nil {
			logger.Warn("Nevalidní alert payload", "error", err)
			return
		}
		logger.Info("Přišel alert z cloudu", "probability", alert.Probability)
	}
	if token := client.Subscribe(cfg.AlertTopic, 0, alertHandler); token.Wait() && token.Error() != nil {
		logger.Error("Subscribe na alert topic selhal", "error", token.Error())
		os.Exit(1)
	}

	logger.Info("Simulátor běží", "broker", cfg.MQTTBroker, "topic", cfg.DataTopic)

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			logger.Info("Simulace ukončena")
			return
		case <-ticker.C:
			payload, _ := json.Marshal(nextSample())
			token := client.Publish(cfg.DataTopic, 0, false, payload)
			token.Wait()
			if token.Error() != nil {
				logger.Error("Chyba při publikaci", "error", token.Error())
				continue
			}
			logger.Info("Published", "payload", string(payload))
		}
	}
}

// sample odpovídá kontraktu příchozí zprávy (viz model.TelemetryPayload).
type sample struct {
	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
	RPM         int     `json:"rpm"`
	Timestamp   int64   `json:"timestamp"`
}

// nextSample vygeneruje "normální" hodnoty se šumem; s malou
// pravděpodobností simuluje poruchu, aby šla vidět eskalace rizika.
func nextSample() sample {
	s := sample{
		Temperature: round1(3.0 + rand.Float64()*4.0),
		Vibration:   round2(0.1 + rand.Float64()*0.4),
		RPM:         1400 + rand.Intn(200),
		Timestamp:   time.Now().Unix(),
	}

	if rand.Float64() < failureChance {
		s.Temperature = round1(9.0 + rand.Float64()*6.0) // mimo pásmo
		s.RPM = rand.Intn(400)                           // stojící ventilátor
		s.Vibration = round2(2.0 + rand.Float64()*3.0)   // náraz
	}

	return s
}

func round1(v float64) float64 { return float64(int(v*10)) / 10 }
func round2(v float64) float64 { return float64(int(v*100)) / 100 }
