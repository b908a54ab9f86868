package risk

import (
	"context"
	"log/slog"

	"coldchain-monitor/internal/model"
)

// Štítky důvodů rizika. Jsou to sémantické tagy (konstanty), ne volný text -
// dashboard i testy se na ně odkazují přesně.
const (
	ReasonTemperatureExcursion = "temperature-excursion"
	ReasonCoolingFanFailure    = "cooling-fan-failure"
	ReasonUnstableCooling      = "unstable-cooling"
	ReasonVibrationShock       = "vibration-shock-detected"
)

// Config drží kalibrační konstanty pravidel.
// Hodnoty jsou doménová kalibrace bez dokumentovaného odvození -
// proto jsou konfigurovatelné (ENV), ne zadrátované v kódu.
type Config struct {
	// Povolené teplotní pásmo nákladu, uzavřený interval [TempLow, TempHigh].
	TempLow  float64
	TempHigh float64

	// Eskalace teplotního rizika podle délky excursion:
	// score = min(TempBase + elapsed/TempEscalationSecs, TempCap)
	TempBase           float64
	TempCap            float64
	TempEscalationSecs float64

	// TempNoHistory: skóre, když nemáme žádné compliant čtení v historii
	// (nemůžeme odhadnout, jak dlouho excursion trvá).
	TempNoHistory float64

	// Ventilátor: pod FanCriticalRPM je zastavený (kritická porucha),
	// pod FanWarnRPM běží nestabilně. Hranice jsou ostré (<, ne <=).
	FanCriticalRPM   int
	FanWarnRPM       int
	FanCriticalScore float64
	FanWarnScore     float64

	// Vibrace: nad VibrationLimit (ostře >) jde o náraz/shock.
	VibrationLimit float64
	VibrationScore float64
}

// DefaultConfig vrací kalibraci převzatou z provozu (2-8 °C, 500/1000 RPM, 2 m/s²).
func DefaultConfig() Config {
	return Config{
		TempLow:            2.0,
		TempHigh:           8.0,
		TempBase:           0.2,
		TempCap:            0.6,
		TempEscalationSecs: 600,
		TempNoHistory:      0.3,
		FanCriticalRPM:     500,
		FanWarnRPM:         1000,
		FanCriticalScore:   0.8,
		FanWarnScore:       0.3,
		VibrationLimit:     2.0,
		VibrationScore:     0.5,
	}
}

// CompliantLookup je "capability" pro dotaz do historie: vrátí poslední
// DŘÍVĚJŠÍ čtení, jehož teplota leží v zadaném pásmu, nebo nil, pokud
// žádné neexistuje. Engine dostává funkci, ne celou DB - díky tomu je
// čistě testovatelný bez databáze.
type CompliantLookup func(ctx context.Context, low, high float64) (*model.SensorReading, error)

// Engine je deterministický rule-based vyhodnocovač rizika.
// Nemá žádný vnitřní stav - stejné vstupy dávají vždy stejný výsledek.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Evaluate spočítá rizikovou pravděpodobnost pro jedno čtení.
// Výsledek = MAXIMUM dílčích skóre (nejhorší porucha dominuje, neprůměruje se -
// jediná kritická závada nesmí být "rozředěna" ostatními normálními hodnotami).
// Důvody se vrací v pevném pořadí: teplota, ventilátor, vibrace.
func (e *Engine) Evaluate(ctx context.Context, r model.SensorReading, lastCompliant CompliantLookup) (float64, []string) {
	var reasons []string

	// 1. Teplotní pravidlo
	tempScore := e.temperatureScore(ctx, r, lastCompliant)
	if tempScore > 0 {
		reasons = append(reasons, ReasonTemperatureExcursion)
	}

	// 2. Pravidlo otáček ventilátoru
	var fanScore float64
	switch {
	case r.RPM < e.cfg.FanCriticalRPM:
		fanScore = e.cfg.FanCriticalScore
		reasons = append(reasons, ReasonCoolingFanFailure)
	case r.RPM < e.cfg.FanWarnRPM:
		fanScore = e.cfg.FanWarnScore
		reasons = append(reasons, ReasonUnstableCooling)
	}

	// 3. Pravidlo vibrací (ostrá nerovnost: 2.0 ještě projde, 2.01 už ne)
	var vibScore float64
	if r.Vibration > e.cfg.VibrationLimit {
		vibScore = e.cfg.VibrationScore
		reasons = append(reasons, ReasonVibrationShock)
	}

	return max(tempScore, fanScore, vibScore), reasons
}

// temperatureScore vyhodnotí teplotní compliance.
// Pásmo je uzavřené: 2.0 i 8.0 jsou ještě v pořádku.
func (e *Engine) temperatureScore(ctx context.Context, r model.SensorReading, lastCompliant CompliantLookup) float64 {
	if r.Temperature >= e.cfg.TempLow && r.Temperature <= e.cfg.TempHigh {
		return 0
	}

	// Mimo pásmo -> zjistíme, jak dlouho excursion trvá. Referencí je
	// poslední compliant čtení PŘED tímto (čerstvý zápis se nepočítá).
	prior, err := lastCompliant(ctx, e.cfg.TempLow, e.cfg.TempHigh)
	if err != nil {
		// Chyba dotazu do historie NESMÍ shodit vyhodnocení.
		// Chováme se, jako by historie neexistovala (dostupnost > přesnost).
		e.logger.Warn("Dotaz na compliant historii selhal, používám default skóre",
			"device_id", r.DeviceID, "error", err)
		return e.cfg.TempNoHistory
	}
	if prior == nil {
		// Žádná compliant historie - neumíme určit délku excursion.
		return e.cfg.TempNoHistory
	}

	elapsed := r.CapturedAt.Sub(prior.CapturedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	// Lineární eskalace: 0.2 hned při detekci, +0.1 za každou minutu,
	// strop 0.6 (s defaultní kalibrací).
	return min(e.cfg.TempBase+elapsed/e.cfg.TempEscalationSecs, e.cfg.TempCap)
}
