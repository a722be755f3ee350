package apiserver

import (
	"net/http"

	"trackd/internal/middleware"
	"trackd/internal/services"
)

// WatchlistHandler handles /api/watchlist.
type WatchlistHandler struct {
	watchlistService services.WatchlistService
}

// NewWatchlistHandler creates a new WatchlistHandler.
func NewWatchlistHandler(ws services.WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{watchlistService: ws}
}

type removeWatchItemPayload struct {
	TmdbID services.FlexString `json:"tmdbId"`
}

// ListWatchlistHandler handles GET /api/watchlist
func (h *WatchlistHandler) ListWatchlistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	items, err := h.watchlistService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch watchlist")
		return
	}
	writeData(w, http.StatusOK, items)
}

// AddWatchItemHandler handles POST /api/watchlist
func (h *WatchlistHandler) AddWatchItemHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.WatchItemInput
	if err := decodeJSON(r, &in); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, created, err := h.watchlistService.Add(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, r, err, "Failed to add to watchlist")
		return
	}
	msg := services.MsgAddedToWatchlist
	if !created {
		msg = services.MsgAlreadyInWatchlist
	}
	writeJSONResponse(w, http.StatusOK, dataEnvelope{Success: true, Data: item, Message: msg})
}

// UpdateWatchItemHandler handles PATCH /api/watchlist
func (h *WatchlistHandler) UpdateWatchItemHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.WatchItemUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.watchlistService.Update(r.Context(), userID, in); err != nil {
		writeServiceError(w, r, err, "Failed to update item")
		return
	}
	writeMessage(w, http.StatusOK, "Updated")
}

// RemoveWatchItemHandler handles DELETE /api/watchlist. tmdbId 可以在请求体或查询参数中。
func (h *WatchlistHandler) RemoveWatchItemHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var payload removeWatchItemPayload
	if r.Body != nil {
		// 请求体无效时退回到查询参数
		_ = decodeJSON(r, &payload)
	}
	tmdbID := payload.TmdbID.String()
	if tmdbID == "" {
		tmdbID = r.URL.Query().Get("tmdbId")
	}

	if err := h.watchlistService.Remove(r.Context(), userID, tmdbID); err != nil {
		writeServiceError(w, r, err, "Failed to remove item")
		return
	}
	writeMessage(w, http.StatusOK, "Removed from watchlist")
}
