package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/core/manifest"
	"github.com/codexkit/folium/core/viewsync"
	"github.com/codexkit/folium/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// maxSyncMessage bounds inbound messages; divider lists are small.
	maxSyncMessage = 64 << 10
)

// syncMessage is the wire format in both directions on /sync.
type syncMessage struct {
	Type     string             `json:"type"`
	Folio    string             `json:"folio,omitempty"`
	Page     int                `json:"page,omitempty"`
	Dividers []syncDivider      `json:"dividers,omitempty"`
	Viewport *viewsync.Viewport `json:"viewport,omitempty"`
}

type syncDivider struct {
	Folio string  `json:"folio"`
	Top   float64 `json:"top"`
}

// syncConn is one reading client's sync channel. It is the controller's
// Viewer: page commands go out as JSON frames and the client reports the
// page its viewer is showing.
type syncConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	page    int
	hasPage bool
}

// GoToPage implements viewsync.Viewer. Commands issued after the
// connection closed, or while the send buffer is full, fail rather than
// block the controller.
func (c *syncConn) GoToPage(n int) error {
	data, err := json.Marshal(syncMessage{Type: "goToPage", Page: n})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.ErrNetwork
	case c.send <- data:
		return nil
	default:
		return errors.ErrNetwork
	}
}

// CurrentPage implements viewsync.Viewer.
func (c *syncConn) CurrentPage() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page, c.hasPage
}

func (c *syncConn) setPage(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = n
	c.hasPage = true
}

// handleSync upgrades the connection and runs a per-connection scroll-sync
// controller against the manuscript named by ?siglum=.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	siglum := r.URL.Query().Get("siglum")
	if siglum == "" {
		respondError(w, http.StatusBadRequest, "MISSING_SIGLUM", "siglum query parameter is required")
		return
	}
	m, err := s.store.ManuscriptBySiglum(r.Context(), siglum)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &syncConn{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}
	controller := viewsync.NewController(viewsync.Config{})

	// A manuscript without a facsimile still gets a connection; the
	// controller just never leaves its initial state.
	if err := controller.Start(r.Context(), m.ManifestURL, s.manifests, func(*manifest.Manifest) (viewsync.Viewer, error) {
		return client, nil
	}); err != nil {
		logging.Warn("scroll sync unavailable", "siglum", siglum, "error", err)
	}

	go client.writePump()
	client.readPump(controller)
}

func (c *syncConn) readPump(controller *viewsync.Controller) {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxSyncMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			return
		}
		var msg syncMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn("malformed sync message", "error", err)
			continue
		}
		switch msg.Type {
		case "ready":
			controller.ViewerReady()
		case "observe":
			if msg.Viewport == nil {
				continue
			}
			dividers := make([]viewsync.Divider, len(msg.Dividers))
			for i, d := range msg.Dividers {
				dividers[i] = viewsync.Divider{Folio: d.Folio, Top: d.Top}
			}
			controller.ObserveDividers(dividers, *msg.Viewport)
		case "jump":
			controller.JumpToFolio(msg.Folio)
		case "page":
			c.setPage(msg.Page)
		default:
			logging.Warn("unknown sync message type", "type", msg.Type)
		}
	}
}

func (c *syncConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
