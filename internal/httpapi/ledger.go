package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/service"
)

func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.HistoryFilter{
		Limit: parsePositiveLimit(q.Get("limit"), 50, 500),
	}

	if raw := strings.TrimSpace(q.Get("isActive")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", errors.New("isActive must be true or false"))
			return
		}
		filter.IsActive = &active
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := a.service.ParseDate(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		filter.From = &from
	}
	// to is exclusive
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := a.service.ParseDate(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		filter.To = &to
	}

	entries, err := a.service.ListHistory(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	var entry domain.TransactionHistoryEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	saved, err := a.service.RecordHistory(r.Context(), entry)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := a.service.GetHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleHistoryChain(w http.ResponseWriter, r *http.Request) {
	chain, err := a.service.HistoryChain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": chain})
}

func (a *API) handleUpdateHistory(w http.ResponseWriter, r *http.Request) {
	var patch domain.HistoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	entry, err := a.service.UpdateHistory(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleDeactivateHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.service.DeactivateHistory(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactionId": id, "isActive": false})
}

// handlePurgeHistory uses the configured retention when days is omitted.
func (a *API) handlePurgeHistory(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", errors.New("days must be an integer"))
			return
		}
		days = parsed
	}

	result, err := a.service.PurgeHistory(r.Context(), days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListDeferredSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListDeferredSales(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deferredSales": sales})
}

func (a *API) handleEnqueueDeferredSale(w http.ResponseWriter, r *http.Request) {
	var sale domain.DeferredSale
	if err := decodeJSON(r, &sale); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	saved, err := a.service.EnqueueDeferredSale(r.Context(), sale)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) handleDeferredSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DeferredSummary(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handlePayAll stamps the caller as payer unless the body names one.
func (a *API) handlePayAll(w http.ResponseWriter, r *http.Request) {
	var req domain.PayAllRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	if strings.TrimSpace(req.PaidBy) == "" {
		if actor, ok := service.ActorFromContext(r.Context()); ok {
			req.PaidBy = actor.Username
		}
	}

	settlement, err := a.service.PayAll(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}
