package model

import "time"

// SensorReading je jeden uložený vzorek telemetrie z chladicího kontejneru.
// ID přiděluje databáze (bigserial) až při INSERTu. Záznam je neměnný -
// pipeline ho nikdy neupravuje ani nemaže.
type SensorReading struct {
	ID       int64
	DeviceID string

	// Temperature ve °C. Povolené pásmo pro náklad definuje risk.Config.
	Temperature float64

	// Vibration v m/s². Nesmí být záporná (validuje dekodér).
	Vibration float64

	// RPM - otáčky chladicího ventilátoru. Nezáporné celé číslo.
	RPM int

	// CapturedAt přiděluje VŽDY server při příjmu zprávy.
	// DŮVOD: Hodiny na zařízení nejsou synchronizované (clock skew),
	// takže timestamp z payloadu nebereme jako zdroj pravdy.
	CapturedAt time.Time
}

// RiskAssessment je výsledek vyhodnocení jednoho čtení.
// Vztah k SensorReading je 1:1 (reading_id má v DB UNIQUE constraint).
type RiskAssessment struct {
	ID        int64
	ReadingID int64

	// Probability v intervalu [0,1]. Vždy maximum přes dílčí pravidla,
	// nikdy součet - viz risk.Engine.
	Probability float64

	// Reasons jsou sémantické štítky ("temperature-excursion", ...),
	// v deterministickém pořadí: teplota, ventilátor, vibrace.
	Reasons []string

	AssessedAt time.Time
}

// TelemetryPayload je struktura příchozí MQTT zprávy z topicu cargo/coldchain/data.
// POZOR: Povinná pole jsou pointery, abychom rozlišili "pole chybí" (nil)
// od nulové hodnoty. Hodnota 0 je validní RPM, ale chybějící RPM je chyba.
type TelemetryPayload struct {
	DeviceID    *string  `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Vibration   *float64 `json:"vibration"`

	// RPM dekódujeme jako float64 (JSON žádné "int" nezná),
	// celočíselnost kontroluje dekodér.
	RPM *float64 `json:"rpm"`

	// Timestamp (epoch sekundy) je volitelný a jen informativní -
	// do DB jde serverový čas, viz SensorReading.CapturedAt.
	Timestamp *int64 `json:"timestamp"`
}

// AlertPayload je výstupní zpráva na topic cargo/coldchain/alert.
// Minimální kontrakt: zařízení (ESP32) zajímá jen výsledná pravděpodobnost.
type AlertPayload struct {
	Probability float64 `json:"probability"`
}

// Snapshot je "poslední známý stav" - čtení spojené s jeho vyhodnocením.
// Ukládá se do Valkey (hot cache) a vrací ho GET /api/latest.
type Snapshot struct {
	ReadingID   int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	Vibration   float64   `json:"vibration"`
	RPM         int       `json:"rpm"`
	CapturedAt  time.Time `json:"timestamp"`
	Probability float64   `json:"risk_probability"`
	Reasons     []string  `json:"risk_reasons"`
}

// HistoryEntry je jeden řádek odpovědi GET /api/history.
// Probability je *float64 (pointer): čtení, u kterého selhal zápis
// assessmentu, v historii vidíme s null rizikem - degradovaný stav
// má být viditelný, ne skrytý.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	Vibration   float64   `json:"vibration"`
	RPM         int       `json:"rpm"`
	CapturedAt  time.Time `json:"timestamp"`
	Probability *float64  `json:"risk_probability"`
	Reasons     []string  `json:"risk_reasons"`
}
