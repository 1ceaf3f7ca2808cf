package httpinterface

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shielded-wallet/zsyncd/internal/core/application/synchronizer"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamHub keeps track of the open websocket connections so that they can
// be closed on shutdown.
type streamHub struct {
	lock   sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func newStreamHub() *streamHub {
	return &streamHub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *streamHub) add(conn *websocket.Conn) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *streamHub) remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.conns, conn)
}

func (h *streamHub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.closed = true
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

// stream upgrades the request to a websocket and writes there every status
// update and sync event of the account until the client goes away.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	if !h.streams.add(conn) {
		conn.Close()
		return
	}

	logger := h.log.WithFields(log.Fields{
		"account": a.Fingerprint(),
		"remote":  r.RemoteAddr,
	})
	logger.Debug("stream opened")

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, a.Synchronizer(), done, logger)

	h.streams.remove(conn)
	conn.Close()
	logger.Debug("stream closed")
}

// readPump discards everything the client sends and only handles control
// frames. done is closed once the connection is gone.
func readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(readLimit)
	//nolint
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(
	conn *websocket.Conn, s *synchronizer.Synchronizer,
	done <-chan struct{}, logger log.FieldLogger,
) {
	statusID, statusCh := s.SubscribeStatus()
	defer s.UnsubscribeStatus(statusID)
	eventsID, eventsCh := s.SubscribeEvents()
	defer s.UnsubscribeEvents(eventsID)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg streamMessage

		select {
		case <-done:
			return
		case st, ok := <-statusCh:
			if !ok {
				closeStream(conn)
				return
			}
			info := newStatusInfo(st)
			msg = streamMessage{Type: "status", Status: &info}
		case e, ok := <-eventsCh:
			if !ok {
				closeStream(conn)
				return
			}
			msg = streamMessage{Type: "event", Event: newEventInfo(e)}
		case <-ticker.C:
			//nolint
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		//nolint
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.WithError(err).Debug("failed to write on stream")
			return
		}
	}
}

func closeStream(conn *websocket.Conn) {
	//nolint
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "account closed"),
		time.Now().Add(writeWait),
	)
}
