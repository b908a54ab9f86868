package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"coldchain-monitor/internal/metrics"
	"coldchain-monitor/internal/model"
	"coldchain-monitor/internal/risk"
)

// ErrMalformedPayload označuje zprávu, která neprošla dekódováním.
// Taková zpráva se zahodí (warn log), do DB se nezapisuje nic.
var ErrMalformedPayload = errors.New("malformed telemetry payload")

// Store je vše, co Coordinator potřebuje od úložiště.
// Interface (ne konkrétní *store.Repository) kvůli testům bez živé DB.
type Store interface {
	InsertReading(ctx context.Context, rd model.SensorReading) (int64, error)
	InsertAssessment(ctx context.Context, a model.RiskAssessment) (int64, error)
	LatestCompliantBefore(ctx context.Context, deviceID string, beforeID int64, low, high float64) (*model.SensorReading, error)
	CacheSnapshot(ctx context.Context, s model.Snapshot) error
}

// AlertPublisher odesílá výsledný alert. Implementace (MQTT) si sama
// hlídá krátký deadline - publikace je best-effort side-effect.
type AlertPublisher interface {
	PublishAlert(payload []byte) error
}

// Config jsou provozní parametry koordinátoru.
type Config struct {
	// DefaultDeviceID doplníme zprávám bez device_id.
	DefaultDeviceID string

	// StoreTimeout ohraničuje každý DB round-trip.
	StoreTimeout time.Duration
}

// Coordinator řídí zpracování jedné zprávy:
// dekóduj -> ulož čtení -> vyhodnoť riziko -> ulož assessment -> publikuj alert.
// Všechny závislosti dostává zvenčí (wiring v main), žádný globální stav.
type Coordinator struct {
	store  Store
	engine *risk.Engine
	alerts AlertPublisher
	logger *slog.Logger
	cfg    Config

	// now je oddělené kvůli deterministickým testům.
	now func() time.Time
}

func NewCoordinator(st Store, engine *risk.Engine, alerts AlertPublisher, logger *slog.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		store:  st,
		engine: engine,
		alerts: alerts,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle zpracuje jednu doručenou zprávu. Každý krok je samostatná
// failure domain: chyba ukončí zpracování TÉTO zprávy, ale nikdy neshodí
// proces - intake loop musí běžet dál i po přechodné poruše.
//
// Jakákoliv chyba PO uložení čtení čtení neodvolává. Uložené čtení bez
// assessmentu je přijatelný degradovaný stav (zalogovaný + counter),
// lepší než ztratit surovou telemetrii.
func (c *Coordinator) Handle(ctx context.Context, payload []byte) error {
	start := time.Now()
	metrics.MessagesReceived.Inc()

	// KROK 1: Dekódování + validace
	reading, deviceTS, err := c.decode(payload)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("decode").Inc()
		c.logger.Warn("Zpráva odmítnuta", "důvod", err, "payload", string(payload))
		return err
	}
	if deviceTS != nil {
		// Timestamp ze zařízení jen logujeme - do DB jde serverový čas
		// (hodiny zařízení nejsou důvěryhodné).
		c.logger.Debug("Zařízení poslalo vlastní timestamp",
			"device_id", reading.DeviceID, "device_ts", *deviceTS)
	}

	// KROK 2: Uložení čtení (před vyhodnocením - ID je hranice lookbacku)
	saveCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	readingID, err := c.store.InsertReading(saveCtx, reading)
	cancel()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert_reading").Inc()
		c.logger.Error("Chyba při ukládání čtení", "device_id", reading.DeviceID, "error", err)
		return err
	}
	reading.ID = readingID

	// KROK 3: Vyhodnocení rizika. Lookback capability je svázaná
	// s právě zapsaným ID - engine vidí jen starší čtení.
	lookup := func(lctx context.Context, low, high float64) (*model.SensorReading, error) {
		qctx, qcancel := context.WithTimeout(lctx, c.cfg.StoreTimeout)
		defer qcancel()
		return c.store.LatestCompliantBefore(qctx, reading.DeviceID, readingID, low, high)
	}
	probability, reasons := c.engine.Evaluate(ctx, reading, lookup)

	// KROK 4: Uložení assessmentu
	assessment := model.RiskAssessment{
		ReadingID:   readingID,
		Probability: probability,
		Reasons:     reasons,
		AssessedAt:  c.now(),
	}
	saveCtx, cancel = context.WithTimeout(ctx, c.cfg.StoreTimeout)
	_, err = c.store.InsertAssessment(saveCtx, assessment)
	cancel()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert_assessment").Inc()
		metrics.ReadingsWithoutAssessment.Inc()
		// Čtení zůstává uložené - degradovaný stav hlásíme, neskrýváme.
		c.logger.Error("Čtení uloženo BEZ assessmentu",
			"reading_id", readingID, "device_id", reading.DeviceID, "error", err)
		return err
	}

	metrics.LastRiskProbability.WithLabelValues(reading.DeviceID).Set(probability)

	// KROK 5: Hot cache pro dashboard (best-effort, pravda je v PG)
	snapshot := model.Snapshot{
		ReadingID:   readingID,
		DeviceID:    reading.DeviceID,
		Temperature: reading.Temperature,
		Vibration:   reading.Vibration,
		RPM:         reading.RPM,
		CapturedAt:  reading.CapturedAt,
		Probability: probability,
		Reasons:     reasons,
	}
	saveCtx, cancel = context.WithTimeout(ctx, c.cfg.StoreTimeout)
	if err := c.store.CacheSnapshot(saveCtx, snapshot); err != nil {
		metrics.StoreErrors.WithLabelValues("cache_snapshot").Inc()
		c.logger.Warn("Chyba update hot cache", "error", err)
	}
	cancel()

	// KROK 6: Publikace alertu (fire-and-forget, chyba neruší uložená data)
	alert, _ := json.Marshal(model.AlertPayload{Probability: probability})
	if err := c.alerts.PublishAlert(alert); err != nil {
		metrics.PublishErrors.Inc()
		c.logger.Warn("Chyba při publikaci alertu", "error", err)
	}

	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	c.logger.Debug("Zpráva zpracována",
		"reading_id", readingID,
		"device_id", reading.DeviceID,
		"probability", probability,
		"reasons", reasons)
	return nil
}

// decode zvaliduje payload a převede ho na SensorReading.
// Vrací i timestamp ze zařízení (pokud přišel) - jen pro logování.
// CapturedAt je VŽDY serverový čas; chybějící timestamp tedy není chyba.
func (c *Coordinator) decode(payload []byte) (model.SensorReading, *int64, error) {
	var p model.TelemetryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return model.SensorReading{}, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	// Povinná pole: nil znamená, že pole v JSONu chybělo (nebo mělo špatný typ,
	// to už zachytil Unmarshal výše).
	if p.Temperature == nil {
		return model.SensorReading{}, nil, fmt.Errorf("%w: chybí pole temperature", ErrMalformedPayload)
	}
	if p.Vibration == nil {
		return model.SensorReading{}, nil, fmt.Errorf("%w: chybí pole vibration", ErrMalformedPayload)
	}
	if p.RPM == nil {
		return model.SensorReading{}, nil, fmt.Errorf("%w: chybí pole rpm", ErrMalformedPayload)
	}

	// Fyzikální validace: záporné vibrace a otáčky jsou chyba senzoru.
	if *p.Vibration < 0 {
		return model.SensorReading{}, nil, fmt.Errorf("%w: záporná vibrace %.2f", ErrMalformedPayload, *p.Vibration)
	}
	if *p.RPM < 0 || *p.RPM != math.Trunc(*p.RPM) {
		return model.SensorReading{}, nil, fmt.Errorf("%w: rpm musí být nezáporné celé číslo, přišlo %v", ErrMalformedPayload, *p.RPM)
	}

	deviceID := c.cfg.DefaultDeviceID
	if p.DeviceID != nil && *p.DeviceID != "" {
		deviceID = *p.DeviceID
	}

	return model.SensorReading{
		DeviceID:    deviceID,
		Temperature: *p.Temperature,
		Vibration:   *p.Vibration,
		RPM:         int(*p.RPM),
		CapturedAt:  c.now(),
	}, p.Timestamp, nil
}
