package apiserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"trackd/internal/tmdb"
)

// MetadataClient is the part of tmdb.Client the proxy needs.
type MetadataClient interface {
	Search(ctx context.Context, query string) (json.RawMessage, error)
	Person(ctx context.Context, id string) (*tmdb.Person, error)
}

// TMDBHandler proxies search and person lookups to TMDB.
type TMDBHandler struct {
	client MetadataClient
}

// NewTMDBHandler creates a new TMDBHandler.
func NewTMDBHandler(client MetadataClient) *TMDBHandler {
	return &TMDBHandler{client: client}
}

// SearchHandler handles GET /api/tmdb?query=. 成功时原样返回上游 JSON（已过滤）。
func (h *TMDBHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	body, err := h.client.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.writeUpstreamError(w, r, err, "Failed to search")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// PersonHandler handles GET /api/tmdb/person/{id}
func (h *TMDBHandler) PersonHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeJSONError(w, "Missing person id", http.StatusBadRequest)
		return
	}

	person, err := h.client.Person(r.Context(), id)
	if err != nil {
		h.writeUpstreamError(w, r, err, "Failed to fetch person")
		return
	}
	writeJSONResponse(w, http.StatusOK, person)
}

func (h *TMDBHandler) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, tmdb.ErrEmptyQuery) {
		writeJSONError(w, "Query parameter is required", http.StatusBadRequest)
		return
	}
	var statusErr *tmdb.StatusError
	if errors.As(err, &statusErr) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("TMDB 返回错误状态")
		writeJSONError(w, fallback, statusErr.StatusCode)
		return
	}
	log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
	writeJSONError(w, fallback, http.StatusInternalServerError)
}
