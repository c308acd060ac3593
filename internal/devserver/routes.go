package devserver

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// SetupRoutes returns a ServeMux serving the health check on "/" and the
// chat endpoint on "/ws". Clients dial the endpoint on the server root as
// well, so both paths upgrade WebSocket requests.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rootHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	return mux
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && websocket.IsWebSocketUpgrade(r) {
		s.WebSocketHandler(w, r)
		return
	}
	HealthHandler(w, r)
}
