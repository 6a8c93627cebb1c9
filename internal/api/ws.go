package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is owned by the fronting proxy
	},
}

// eventStreamHandler upgrades the connection, registers a session for the
// authenticated user, and pumps hub events out until the client goes away.
// Teardown always unregisters, so stale handles cannot leak.
func eventStreamHandler(hub *notify.Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "identity headers missing")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		session := hub.Register(actor.UserID)

		go writePump(session, conn)
		go readPump(hub, session, conn)
	}
}

// writePump drains the session buffer into the socket. It exits when the
// hub closes the Send channel (unregister) or a write fails.
func writePump(session *notify.Session, conn *websocket.Conn) {
	defer conn.Close()

	for message := range session.Send {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; its job is noticing disconnects and
// unregistering the session. Unregister is idempotent, so racing with an
// explicit close is harmless.
func readPump(hub *notify.Hub, session *notify.Session, conn *websocket.Conn) {
	defer func() {
		hub.Unregister(session)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
