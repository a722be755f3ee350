package apiserver

import (
	"net/http"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trackd/internal/auth"
	"trackd/internal/config"
	"trackd/internal/metrics"
	"trackd/internal/middleware"
)

// Handlers 汇总了 API 服务器的全部处理器。
type Handlers struct {
	Auth       *AuthHandler
	Friend     *FriendHandler
	Suggestion *SuggestionHandler
	Watchlist  *WatchlistHandler
	TMDB       *TMDBHandler
}

// NewRouter 注册所有路由。blacklist 可以为 nil。
func NewRouter(h Handlers, cfg config.Config, blacklist auth.TokenBlacklist) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// 公开路由
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/login", h.Auth.LoginHandler).Methods(http.MethodGet)
	authRouter.HandleFunc("/callback", h.Auth.CallbackHandler).Methods(http.MethodGet)

	// API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.AuthMiddleware(cfg.Auth, blacklist))

	apiRouter.HandleFunc("/me", h.Auth.MeHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/auth/logout", h.Auth.LogoutHandler).Methods(http.MethodPost)

	apiRouter.HandleFunc("/friends", h.Friend.ListFriendsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends", h.Friend.SendFriendRequestHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/friends", h.Friend.AcceptFriendRequestHandler).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/friends", h.Friend.RemoveFriendHandler).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/suggestions", h.Suggestion.ListSuggestionsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/suggestions", h.Suggestion.CreateSuggestionHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/suggestions", h.Suggestion.UpdateSuggestionHandler).Methods(http.MethodPatch)

	apiRouter.HandleFunc("/watchlist", h.Watchlist.ListWatchlistHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watchlist", h.Watchlist.AddWatchItemHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watchlist", h.Watchlist.UpdateWatchItemHandler).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/watchlist", h.Watchlist.RemoveWatchItemHandler).Methods(http.MethodDelete)

	// TMDB 代理共享一个 API key，按客户端 IP 限流
	tmdbRouter := apiRouter.PathPrefix("/tmdb").Subrouter()
	tmdbRouter.Use(rateLimit(cfg.APIServer.RateLimit))
	tmdbRouter.HandleFunc("", h.TMDB.SearchHandler).Methods(http.MethodGet)
	tmdbRouter.HandleFunc("/person/{id:[0-9]+}", h.TMDB.PersonHandler).Methods(http.MethodGet)

	return r
}

func rateLimit(cfg config.RateLimitConfig) mux.MiddlewareFunc {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, "Too many requests", http.StatusTooManyRequests)
		}),
	)
}
