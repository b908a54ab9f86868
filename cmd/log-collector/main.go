package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// KONFIGURACE
// Malá služba, konfigurace přímo zde (jen broker a adresář přes ENV).
const (
	clientID = "log-collector"
	logTopic = "logs/#" // Posloucháme všechno pod logs/
)

func main() {
	// Vlastní logger jen na stdout (collector nesmí logovat sám do sebe).
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	broker := getEnv("MQTT_BROKER", "tcp://mqtt:1883")
	logDir := getEnv("LOG_DIR", "/var/log/coldchain")

	logger.Info("Startuji Log Collector", "dir", logDir)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.Error("Nelze vytvořit adresář pro logy", "error", err)
		os.Exit(1)
	}

	// Handler pro každou přijatou logovací zprávu z jakékoliv služby.
	messageHandler := func(client mqtt.Client, msg mqtt.Message) {
		// Topic: "logs/risk-processor" -> soubor risk-processor.log
		parts := strings.Split(msg.Topic(), "/")
		if len(parts) < 2 {
			logger.Warn("Ignoruji zprávu se špatným formátem topicu", "topic", msg.Topic())
			return
		}
		serviceName := parts[1]

		if err := appendLogToFile(logDir, serviceName, msg.Payload()); err != nil {
			logger.Error("Chyba při zápisu do souboru", "service", serviceName, "error", err)
		}
	}

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetDefaultPublishHandler(messageHandler)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("MQTT Connection failed", "error", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	if token := client.Subscribe(logTopic, 0, nil); token.Wait() && token.Error() != nil {
		logger.Error("Subscribe failed", "error", token.Error())
		os.Exit(1)
	}
	logger.Info("Poslouchám logy", "topic", logTopic)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// appendLogToFile připíše řádek na konec souboru služby.
// Pattern "Open-Write-Close" pro každý zápis - bezpečné vůči rotaci logů.
func appendLogToFile(dir, serviceName string, data []byte) error {
	filename := filepath.Join(dir, fmt.Sprintf("%s.log", serviceName))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
