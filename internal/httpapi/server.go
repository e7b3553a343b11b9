// Package httpapi exposes the auth engine over HTTP. It is a thin JSON layer:
// every security decision stays in the engine, handlers only decode requests,
// call one engine operation, and translate sentinel errors to status codes.
package httpapi

import (
	"net/http"

	authcore "github.com/retailstack/authcore"
	"github.com/retailstack/authcore/logging"
)

// Server binds the engine to an HTTP router.
type Server struct {
	engine  *authcore.Engine
	logger  logging.Logger
	version string
}

// NewServer wires a server. A nil logger discards request logs.
func NewServer(engine *authcore.Engine, logger logging.Logger, version string) *Server {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Server{engine: engine, logger: logger, version: version}
}

// Handler returns the fully assembled router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}
