package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/viscontia/expensefx/internal/cache"
	"github.com/viscontia/expensefx/internal/services"
)

// CacheHandler exposes cache metrics, invalidation and warming.
type CacheHandler struct {
	cache *cache.RateCache
}

func NewCacheHandler(rateCache *cache.RateCache) *CacheHandler {
	return &CacheHandler{cache: rateCache}
}

// GET /api/fx/cache/metrics
func (h *CacheHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.cache.Metrics())
}

// POST /api/fx/cache/invalidate  {"currency": "ZAR"} or {"clear_all": true}
func (h *CacheHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var body struct {
		Currency string `json:"currency"`
		ClearAll bool   `json:"clear_all"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var removed int
	if body.ClearAll {
		removed = h.cache.Invalidate("", "")
	} else if body.Currency != "" {
		removed = h.cache.Invalidate(strings.ToUpper(body.Currency), "")
	} else {
		http.Error(w, "currency or clear_all is required", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"success": true, "removed": removed})
}

// POST /api/fx/cache/warm  [{"from_currency":"EUR","to_currency":"USD","rate":"1.08"}, …]
func (h *CacheHandler) HandleWarm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var body []struct {
		FromCurrency string          `json:"from_currency"`
		ToCurrency   string          `json:"to_currency"`
		Rate         decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid warm payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	seed := make(map[string]any, len(body))
	for _, p := range body {
		if p.FromCurrency == "" || p.ToCurrency == "" || !p.Rate.IsPositive() {
			continue
		}
		key := services.RateKey(strings.ToUpper(p.FromCurrency), strings.ToUpper(p.ToCurrency))
		seed[key] = p.Rate
	}
	h.cache.Warm(seed)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "warmed": len(seed)})
}
