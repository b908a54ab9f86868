package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"coldchain-monitor/internal/model"
	"coldchain-monitor/internal/store"
)

// Defaulty dotazu na historii (stejné jako původní dashboard API).
const (
	defaultHistoryMinutes = 60
	defaultHistoryLimit   = 1000
)

// Store je čtecí rozhraní nad úložišti. Implementuje ho store.Repository;
// interface kvůli testům handlerů bez živé DB.
type Store interface {
	History(ctx context.Context, since time.Time, limit int) ([]model.HistoryEntry, error)
	Latest(ctx context.Context) (*model.Snapshot, error)
	CachedSnapshot(ctx context.Context) (*model.Snapshot, error)
}

// Handler sdružuje metody pro obsluhu HTTP požadavků read API.
// Žádná rozhodovací logika - čistá read-only projekce obou tabulek.
type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(st Store, logger *slog.Logger) *Handler {
	return &Handler{store: st, logger: logger}
}

// RegisterRoutes mapuje URL cesty na handlery (router z Go 1.22+,
// pattern s metodou).
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/latest", h.handleLatest)
}

// handleHistory: GET /api/history?minutes=60&limit=1000
// Vrací čtení z časového okna spojená s assessmenty, nejnovější první.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	minutes := queryInt(r, "minutes", defaultHistoryMinutes)
	limit := queryInt(r, "limit", defaultHistoryLimit)

	since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)

	entries, err := h.store.History(r.Context(), since, limit)
	if err != nil {
		h.logger.Error("Chyba při získávání historie", "error", err)
		http.Error(w, "Chyba při načítání dat", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}

// handleLatest: GET /api/latest
// Nejdřív zkusí hot cache (Valkey), pak SQL. Prázdná DB -> 404, ne crash.
func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.store.CachedSnapshot(ctx)
	if err != nil {
		// Cache je jen optimalizace - chybu zalogujeme a jdeme do SQL.
		h.logger.Warn("Chyba čtení hot cache, jdu do SQL", "error", err)
	}

	if snap == nil {
		snap, err = h.store.Latest(ctx)
		if errors.Is(err, store.ErrNoData) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "No data found"})
			return
		}
		if err != nil {
			h.logger.Error("Chyba při získávání posledního stavu", "error", err)
			http.Error(w, "Chyba při načítání dat", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}

// queryInt přečte celočíselný query parametr, při chybě vrátí default.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// CorsMiddleware přidává hlavičky, které dovolí dashboardu (jiný origin)
// volat toto API. V produkci sem patří konkrétní doména místo "*".
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Preflight request odbavíme rovnou.
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
