package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ledgerpos/backend/internal/domain"
)

func (a *API) handleCheckLock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := a.service.CheckLock(r.Context(), q.Get("date"), q.Get("location"), q.Get("symbol"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleOpenOperation(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenOperationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	op, err := a.service.OpenOperation(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func (a *API) handleListOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ops, err := a.service.ListOperations(r.Context(), q.Get("date"), q.Get("location"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

func (a *API) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := a.service.GetOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// handleCancelOperation answers 200 even when some changes could not be
// undone; the result lists them for manual reconciliation.
func (a *API) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.CancelOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAppendChange(w http.ResponseWriter, r *http.Request) {
	var change domain.Change
	if err := decodeJSON(r, &change); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	operationID := chi.URLParam(r, "id")
	if err := a.service.AppendChange(r.Context(), operationID, change); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.ActionResponse{OperationID: operationID, ChangesAdded: 1})
}

func (a *API) handleSellItem(w http.ResponseWriter, r *http.Request) {
	var req domain.SellItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	req.OperationID = chi.URLParam(r, "id")

	resp, err := a.service.SellItem(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleTransferItem(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	req.OperationID = chi.URLParam(r, "id")

	resp, err := a.service.TransferItem(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleParkCorrection(w http.ResponseWriter, r *http.Request) {
	var req domain.ParkCorrectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}
	req.OperationID = chi.URLParam(r, "id")

	resp, err := a.service.ParkCorrection(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleResolveCorrection(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ResolveCorrection(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "correctionId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListStateItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListStateItems(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := a.service.ListTransfers(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (a *API) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListCorrectionItems(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": items})
}
