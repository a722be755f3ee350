package apiserver

import (
	"net/http"

	"trackd/internal/middleware"
	"trackd/internal/services"
)

// FriendHandler handles /api/friends.
type FriendHandler struct {
	friendService services.FriendService
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(fs services.FriendService) *FriendHandler {
	return &FriendHandler{friendService: fs}
}

type sendFriendRequestPayload struct {
	Email string `json:"email"`
}

type acceptFriendRequestPayload struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// ListFriendsHandler handles GET /api/friends
func (h *FriendHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	lists, err := h.friendService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch friends")
		return
	}
	writeData(w, http.StatusOK, lists)
}

// SendFriendRequestHandler handles POST /api/friends
func (h *FriendHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var payload sendFriendRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, services.ErrInvalidEmail.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.friendService.SendRequest(r.Context(), userID, payload.Email)
	if err != nil {
		writeServiceError(w, r, err, "Failed to send request")
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

// AcceptFriendRequestHandler handles PATCH /api/friends
func (h *FriendHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var payload acceptFriendRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, services.ErrInvalidRequest.Error(), http.StatusBadRequest)
		return
	}

	if err := h.friendService.Accept(r.Context(), userID, payload.ID, payload.Action); err != nil {
		writeServiceError(w, r, err, "Failed to update request")
		return
	}
	writeMessage(w, http.StatusOK, "Request accepted")
}

// RemoveFriendHandler handles DELETE /api/friends?id=
func (h *FriendHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if err := h.friendService.Remove(r.Context(), userID, r.URL.Query().Get("id")); err != nil {
		writeServiceError(w, r, err, "Failed to remove friend")
		return
	}
	writeMessage(w, http.StatusOK, "Removed")
}
