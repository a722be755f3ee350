package notifyserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trackd/internal/config"
	"trackd/internal/metrics"
)

// NewRouter 注册通知服务器的路由：WebSocket 端点、/metrics 和 /healthz。
func NewRouter(wsHandler *WebSocketHandler, cfg config.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	path := cfg.NotifyServer.WebSocketPath
	if path == "" {
		path = "/ws/notifications"
	}
	r.HandleFunc(path, wsHandler.ServeWS).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}
