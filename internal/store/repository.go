package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"coldchain-monitor/internal/model"
)

// ErrNoData vrací dotazy na poslední stav, když je databáze prázdná.
// API ho mapuje na 404, ne na 500.
var ErrNoData = errors.New("no data found")

// Klíč posledního snapshotu ve Valkey. Přepisujeme stále dokola,
// expirace 24h zajistí, že mrtvý stream z cache zmizí.
const (
	snapshotKey = "coldchain:latest"
	snapshotTTL = 24 * time.Hour
)

// Repository zapouzdřuje práci s oběma úložišti.
// Zbytek aplikace neví, jak se píše SQL, jen volá metody repozitáře.
// Zápisy jsou append-only: žádný UPDATE ani DELETE pipeline nevystavuje.
type Repository struct {
	pgPool *pgxpool.Pool // Pool spojení do Postgres (TimescaleDB)
	redis  *redis.Client // Klient pro Valkey (hot cache)
}

// NewRepository vytvoří a ověří připojení k oběma databázím.
func NewRepository(ctx context.Context, postgresURL, valkeyAddr string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("DB není dostupná: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: valkeyAddr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Valkey není dostupný: %w", err)
	}

	return &Repository{pgPool: pool, redis: rdb}, nil
}

// Close uzavře spojení při ukončení aplikace.
func (r *Repository) Close() {
	r.pgPool.Close()
	r.redis.Close()
}

// InsertReading uloží čtení a vrátí jeho přidělené ID.
// Zápis MUSÍ proběhnout před vyhodnocením rizika - nové ID je hranice,
// pod kterou se dívá compliance lookback (čte jen starší řádky).
func (r *Repository) InsertReading(ctx context.Context, rd model.SensorReading) (int64, error) {
	query := `
		INSERT INTO sensor_readings (device_id, temperature, vibration, rpm, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.pgPool.QueryRow(ctx, query,
		rd.DeviceID, rd.Temperature, rd.Vibration, rd.RPM, rd.CapturedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("chyba insertu čtení do PG: %w", err)
	}
	return id, nil
}

// InsertAssessment uloží vyhodnocení. Reasons jdou do text[] sloupce,
// pgx mapuje []string <-> text[] nativně.
func (r *Repository) InsertAssessment(ctx context.Context, a model.RiskAssessment) (int64, error) {
	query := `
		INSERT INTO risk_assessments (reading_id, probability, reasons, assessed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.pgPool.QueryRow(ctx, query,
		a.ReadingID, a.Probability, a.Reasons, a.AssessedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("chyba insertu assessmentu do PG: %w", err)
	}
	return id, nil
}

// LatestCompliantBefore vrátí poslední čtení daného zařízení s teplotou
// v pásmu [low, high], ale jen mezi řádky STARŠÍMI než beforeID.
// Vrací (nil, nil), když žádné takové čtení neexistuje.
//
// Zpětný scan jede přes index (device_id, captured_at DESC) - zůstává
// rychlý i s rostoucí historií, žádná iterace v paměti.
func (r *Repository) LatestCompliantBefore(ctx context.Context, deviceID string, beforeID int64, low, high float64) (*model.SensorReading, error) {
	query := `
		SELECT id, device_id, temperature, vibration, rpm, captured_at
		FROM sensor_readings
		WHERE device_id = $1
		  AND id < $2
		  AND temperature >= $3 AND temperature <= $4
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`

	var rd model.SensorReading
	err := r.pgPool.QueryRow(ctx, query, deviceID, beforeID, low, high).
		Scan(&rd.ID, &rd.DeviceID, &rd.Temperature, &rd.Vibration, &rd.RPM, &rd.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chyba compliance lookbacku: %w", err)
	}
	return &rd, nil
}

// History vrátí čtení od času since, spojená s jejich assessmenty,
// nejnovější první. LEFT JOIN: čtení bez assessmentu (selhal zápis)
// má v odpovědi null riziko - degradovaný stav je vidět.
func (r *Repository) History(ctx context.Context, since time.Time, limit int) ([]model.HistoryEntry, error) {
	query := `
		SELECT r.id, r.device_id, r.temperature, r.vibration, r.rpm, r.captured_at,
		       a.probability, a.reasons
		FROM sensor_readings r
		LEFT JOIN risk_assessments a ON a.reading_id = r.id
		WHERE r.captured_at >= $1
		ORDER BY r.captured_at DESC, r.id DESC
		LIMIT $2
	`

	rows, err := r.pgPool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("chyba načítání historie: %w", err)
	}
	defer rows.Close() // Uvolnění connection zpět do poolu

	entries := make([]model.HistoryEntry, 0, 100)

	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Temperature, &e.Vibration, &e.RPM,
			&e.CapturedAt, &e.Probability, &e.Reasons); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Latest vrátí nejnovější čtení, které už má assessment (INNER JOIN -
// stejný kontrakt jako původní /api/latest). Prázdná DB -> ErrNoData.
func (r *Repository) Latest(ctx context.Context) (*model.Snapshot, error) {
	query := `
		SELECT r.id, r.device_id, r.temperature, r.vibration, r.rpm, r.captured_at,
		       a.probability, a.reasons
		FROM sensor_readings r
		JOIN risk_assessments a ON a.reading_id = r.id
		ORDER BY r.captured_at DESC, r.id DESC
		LIMIT 1
	`

	var s model.Snapshot
	err := r.pgPool.QueryRow(ctx, query).
		Scan(&s.ReadingID, &s.DeviceID, &s.Temperature, &s.Vibration, &s.RPM,
			&s.CapturedAt, &s.Probability, &s.Reasons)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("chyba dotazu na poslední stav: %w", err)
	}
	return &s, nil
}

// CacheSnapshot uloží poslední stav do Valkey (Hot Path pro dashboard).
// Chyba tady není kritická pro integritu dat (vše máme v PG),
// volající ji jen zaloguje.
func (r *Repository) CacheSnapshot(ctx context.Context, s model.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("chyba serializace snapshotu: %w", err)
	}

	if err := r.redis.Set(ctx, snapshotKey, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("chyba update Valkey: %w", err)
	}
	return nil
}

// CachedSnapshot zkusí přečíst poslední stav z Valkey.
// Miss (klíč neexistuje nebo expiroval) vrací (nil, nil) - volající
// spadne na SQL, cache je jen optimalizace.
func (r *Repository) CachedSnapshot(ctx context.Context) (*model.Snapshot, error) {
	payload, err := r.redis.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chyba čtení Valkey: %w", err)
	}

	var s model.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		// Poškozený záznam v cache ignorujeme, pravda je v PG.
		return nil, nil
	}
	return &s, nil
}
