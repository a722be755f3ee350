package apiserver

import (
	"net/http"

	"trackd/internal/middleware"
	"trackd/internal/services"
)

// SuggestionHandler handles /api/suggestions.
type SuggestionHandler struct {
	suggestionService services.SuggestionService
}

// NewSuggestionHandler creates a new SuggestionHandler.
func NewSuggestionHandler(ss services.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{suggestionService: ss}
}

// ListSuggestionsHandler handles GET /api/suggestions
func (h *SuggestionHandler) ListSuggestionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	entries, err := h.suggestionService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch suggestions")
		return
	}
	writeData(w, http.StatusOK, entries)
}

// CreateSuggestionHandler handles POST /api/suggestions
func (h *SuggestionHandler) CreateSuggestionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.SuggestionInput
	if err := decodeJSON(r, &in); err != nil {
		writeJSONError(w, services.ErrMissingFields.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.suggestionService.Create(r.Context(), userID, in); err != nil {
		writeServiceError(w, r, err, "Failed to create suggestion")
		return
	}
	writeMessage(w, http.StatusOK, services.MsgSuggestionSent)
}

// UpdateSuggestionHandler handles PATCH /api/suggestions
func (h *SuggestionHandler) UpdateSuggestionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.SuggestionUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeJSONError(w, services.ErrInvalidRequest.Error(), http.StatusBadRequest)
		return
	}

	if err := h.suggestionService.Update(r.Context(), userID, in); err != nil {
		writeServiceError(w, r, err, "Failed to update suggestion")
		return
	}
	writeMessage(w, http.StatusOK, "Suggestion "+in.Status)
}
