package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/services"
)

// ExpenseHandler exposes expense CRUD; creates and date-changing updates
// trigger rate capture through the expense service.
type ExpenseHandler struct {
	expenses   services.ExpenseService
	conversion services.ConversionService
}

func NewExpenseHandler(expenses services.ExpenseService, conversion services.ConversionService) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, conversion: conversion}
}

// POST /api/expenses
func (h *ExpenseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var expense models.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		http.Error(w, "invalid expense payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	expense.ID = 0

	if err := h.expenses.Create(r.Context(), &expense); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(expense)
}

// GET /api/expenses?limit=50&offset=0&currency=ZAR&category=...
func (h *ExpenseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	q := r.URL.Query()
	filter := &models.ExpenseFilter{
		Currency: q.Get("currency"),
		Category: q.Get("category"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	expenses, err := h.expenses.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if expenses == nil {
		expenses = []*models.Expense{}
	}
	json.NewEncoder(w).Encode(expenses)
}

// GET /api/expenses/{id}?convert_to=EUR
func (h *ExpenseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	expense, err := h.expenses.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if expense == nil {
		http.Error(w, "expense not found", http.StatusNotFound)
		return
	}

	resp := map[string]any{"expense": expense}
	if target := r.URL.Query().Get("convert_to"); target != "" && target != expense.Currency {
		conv, err := h.conversion.Convert(r.Context(), expense.Amount, expense.Currency, target, &expense.ID)
		if err == nil {
			resp["converted"] = map[string]any{
				"amount":     conv.Rounded(),
				"currency":   conv.ToCurrency,
				"rate":       conv.Rate,
				"provenance": conv.Provenance,
			}
		}
	}
	json.NewEncoder(w).Encode(resp)
}

// PUT /api/expenses/{id}
func (h *ExpenseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	var expense models.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		http.Error(w, "invalid expense payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	expense.ID = id

	if err := h.expenses.Update(r.Context(), &expense); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(expense)
}

// DELETE /api/expenses/{id}
func (h *ExpenseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	if err := h.expenses.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid expense id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
