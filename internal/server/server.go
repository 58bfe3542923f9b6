package server

import (
	"fmt"
	"net/http"

	"github.com/cairndb/cairn/core/db"
	"github.com/cairndb/cairn/internal/config"
	"github.com/cairndb/cairn/internal/logging"
)

// NewMux builds the routed handler for database: POST /batch (one request,
// one reply) and /ws (one connection, many request/reply pairs), both
// implementing the host Request collaborator over the wire (spec §6.2),
// wrapped in the same middleware chain the teacher's web server uses.
func NewMux(database *db.Database, cfg config.Config) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/batch", BatchHandler(database))
	mux.Handle("/ws", WebSocketHandler(database, allowOrigins(cfg)))

	handler := logging.CombinedMiddleware(TimingMiddleware(SecurityHeadersWithCSP(APICSPConfig(), mux)))
	return CORSMiddlewareWithConfig(CORSConfig{AllowedOrigins: cfg.AllowOrigins}, handler)
}

func allowOrigins(cfg config.Config) []string {
	if len(cfg.AllowOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.AllowOrigins
}

// Start runs the server on cfg.ListenAddr until the process is killed or
// http.ListenAndServe returns an error (spec's host process, not part of core/db).
func Start(database *db.Database, cfg config.Config) error {
	handler := NewMux(database, cfg)
	logging.ServerStartup("cairn", "http", listenPort(cfg.ListenAddr))
	return http.ListenAndServe(cfg.ListenAddr, handler)
}

func listenPort(addr string) int {
	var port int
	if _, err := fmt.Sscanf(addr, ":%d", &port); err != nil {
		return 0
	}
	return port
}
