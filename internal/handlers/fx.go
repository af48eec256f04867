package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/services"
	"github.com/viscontia/expensefx/internal/store"
)

// CurrencyInfo is one entry of the available-currencies listing.
type CurrencyInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// defaultCurrencies is served when the daily table is still empty.
var defaultCurrencies = []CurrencyInfo{
	{Code: "EUR", Name: "Euro", Symbol: "€"},
	{Code: "USD", Name: "US Dollar", Symbol: "$"},
	{Code: "GBP", Name: "British Pound", Symbol: "£"},
	{Code: "ZAR", Name: "South African Rand", Symbol: "R"},
	{Code: "JPY", Name: "Japanese Yen", Symbol: "¥"},
	{Code: "CHF", Name: "Swiss Franc", Symbol: "CHF"},
	{Code: "AUD", Name: "Australian Dollar", Symbol: "A$"},
	{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$"},
}

// currencyNames maps codes to display names/symbols for codes found in the
// store.
var currencyNames = func() map[string]CurrencyInfo {
	m := make(map[string]CurrencyInfo, len(defaultCurrencies))
	for _, c := range defaultCurrencies {
		m[c.Code] = c
	}
	return m
}()

// FXHandler exposes the currency operations: rates, conversions, refresh
// control, freshness.
type FXHandler struct {
	conversion services.ConversionService
	refresh    services.RefreshService
	rates      store.RateStore
}

func NewFXHandler(conversion services.ConversionService, refresh services.RefreshService, rates store.RateStore) *FXHandler {
	return &FXHandler{conversion: conversion, refresh: refresh, rates: rates}
}

// GET /api/fx/rate?from=EUR&to=USD
func (h *FXHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}

	conv, err := h.conversion.Rate(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"from":       conv.FromCurrency,
		"to":         conv.ToCurrency,
		"rate":       conv.Rate,
		"provenance": conv.Provenance,
	})
}

// GET /api/fx/convert?amount=100&from=EUR&to=USD
func (h *FXHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		http.Error(w, "amount must be a decimal number", http.StatusBadRequest)
		return
	}
	from, to := q.Get("from"), q.Get("to")

	conv, err := h.conversion.Convert(r.Context(), amount, from, to, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"original_amount":  conv.OriginalAmount,
		"from":             conv.FromCurrency,
		"to":               conv.ToCurrency,
		"converted_amount": conv.Rounded(),
		"rate":             conv.Rate,
		"provenance":       conv.Provenance,
	})
}

// POST /api/fx/update  {"force": bool}
func (h *FXHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var body struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	res := h.refresh.UpdateDaily(r.Context(), body.Force)
	json.NewEncoder(w).Encode(res)
}

// POST /api/fx/force-update
func (h *FXHandler) HandleForceUpdate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	res, err := h.refresh.ForceUpdate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(res)
}

// GET /api/fx/last-update
func (h *FXHandler) HandleLastUpdate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.refresh.LastUpdate(r.Context()))
}

// GET /api/fx/status
func (h *FXHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.refresh.Status(r.Context()))
}

// GET /api/fx/currencies
func (h *FXHandler) HandleCurrencies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	codes, err := h.rates.ListCurrencies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if len(codes) == 0 {
		json.NewEncoder(w).Encode(defaultCurrencies)
		return
	}

	out := make([]CurrencyInfo, 0, len(codes))
	for _, code := range codes {
		if info, ok := currencyNames[code]; ok {
			out = append(out, info)
		} else {
			out = append(out, CurrencyInfo{Code: code, Name: code, Symbol: code})
		}
	}
	json.NewEncoder(w).Encode(out)
}

// writeError maps error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
