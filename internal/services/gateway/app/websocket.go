package app

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	controller "github.com/LeonardoBeccarini/zone_irrigation/internal/services/irrigation-controller"
)

// HandleTelemetryWS streams zone snapshots. The current snapshot is sent
// first when the zone has data; the subscription ends with the connection
// or when the client falls too far behind.
func (g *Gateway) HandleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	zone := g.zoneParam(r)
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("gateway: websocket upgrade failed", "zone", zone, "error", err)
		return
	}

	obs := controller.NewChanObserver(g.cfg.WSBuffer)
	h, err := g.api.SubscribeLive(zone, obs)
	if err != nil {
		g.logger.Warn("gateway: live subscribe failed", "zone", zone, "error", err)
		_ = conn.Close()
		return
	}
	g.logger.Info("gateway: websocket connected", "zone", zone, "observer", h.ID)

	done := make(chan struct{})
	go g.wsWriter(conn, obs, done)

	// reader: keepalive only, client messages are ignored
	readWait := 2 * g.cfg.WSPingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
	}

	g.api.Unsubscribe(h)
	obs.Close()
	<-done
	_ = conn.Close()
	g.logger.Info("gateway: websocket closed", "zone", zone, "observer", h.ID)
}

// wsWriter is the only goroutine writing to conn.
func (g *Gateway) wsWriter(conn *websocket.Conn, obs *controller.ChanObserver, done chan<- struct{}) {
	defer close(done)
	ping := time.NewTicker(g.cfg.WSPingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-obs.C():
			_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WSWriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription ended"))
				_ = conn.Close() // unblocks the reader
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
