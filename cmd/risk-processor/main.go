package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coldchain-monitor/internal/config"
	"coldchain-monitor/internal/mqttlog"
	"coldchain-monitor/internal/pipeline"
	"coldchain-monitor/internal/risk"
	"coldchain-monitor/internal/store"
)

func main() {
	cfg := config.Load()

	// MQTT klient musí existovat DŘÍV než logger - logger přes něj
	// zrcadlí výstup na logs/risk-processor.
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(cfg.MQTTClientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		// Fallback: bez MQTT logujeme jen na stdout a končíme.
		slog.Error("Fatal MQTT Error", "err", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	// --- SETUP LOGGERU ---
	// MultiWriter: stdout + MQTT topic logs/risk-processor
	multi := io.MultiWriter(os.Stdout, mqttlog.NewWriter(client, "risk-processor"))
	logger := slog.New(slog.NewJSONHandler(multi, nil))
	slog.SetDefault(logger)

	logger.Info("Startuji Risk Processor", "config", cfg)

	// Inicializace Repozitáře (Postgres + Valkey)
	ctx := context.Background()
	repo, err := store.NewRepository(ctx, cfg.PostgresURL, cfg.ValkeyAddr)
	if err != nil {
		// Bez DB nemá smysl pokračovat -> crash, kontejner se restartuje.
		logger.Error("Kritická chyba připojení k databázím", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Databáze připojeny")

	// Wiring pipeline: vše se konstruuje jednou tady a předává explicitně,
	// žádný ambientní globální stav - engine i coordinator jsou
	// testovatelné bez brokeru a DB.
	engine := risk.NewEngine(config.LoadRisk(), logger)
	alerts := &mqttAlertPublisher{
		client:  client,
		topic:   cfg.AlertTopic,
		timeout: cfg.PublishTimeout,
	}
	coordinator := pipeline.NewCoordinator(repo, engine, alerts, logger, pipeline.Config{
		DefaultDeviceID: cfg.DefaultDeviceID,
		StoreTimeout:    cfg.StoreTimeout,
	})
	sequencer := pipeline.NewSequencer(coordinator, cfg.DefaultDeviceID, cfg.LaneBuffer, logger)

	// Healthcheck + Prometheus endpoint (pro Docker/K8s a scraping)
	go startHealthServer(cfg.HTTPPort, logger)

	// --- HLAVNÍ LOOP ZPRACOVÁNÍ ZPRÁV ---
	// Handler jen zařadí zprávu do fronty jejího zařízení a hned se vrací.
	// Sekvencer garantuje pořadí per zařízení; samotné zpracování
	// (DB round-tripy) neblokuje doručovací smyčku paho klienta.
	handler := func(client mqtt.Client, msg mqtt.Message) {
		sequencer.Enqueue(msg.Payload())
	}

	if token := client.Subscribe(cfg.DataTopic, 0, handler); token.Wait() && token.Error() != nil {
		logger.Error("Subscribe selhal", "topic", cfg.DataTopic, "error", token.Error())
		os.Exit(1)
	}
	logger.Info("Poslouchám na topicu", "topic", cfg.DataTopic, "alert_topic", cfg.AlertTopic)

	// Graceful Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Vypínám službu, dojíždím fronty...")
	sequencer.Close()
}

// mqttAlertPublisher implementuje pipeline.AlertPublisher nad paho klientem.
type mqttAlertPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// PublishAlert odešle alert s krátkým bounded čekáním.
// Když se broker nestihne ozvat, vracíme chybu - Coordinator ji jen
// zaloguje, uložená data tím nejsou dotčená.
func (p *mqttAlertPublisher) PublishAlert(payload []byte) error {
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publikace alertu nestihla timeout %s", p.timeout)
	}
	return token.Error()
}

// startHealthServer spustí jednoduchý HTTP endpoint + Prometheus metriky.
func startHealthServer(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /prometheus", promhttp.Handler())

	logger.Info("Health server běží", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("Health server spadl", "error", err)
	}
}
