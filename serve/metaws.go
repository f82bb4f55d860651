package serve

import (
	"net/http"
	"time"

	"detectcam/pipeline"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second

	defaultMetaInterval = 100 * time.Millisecond
)

// MetaPusher pushes the latest frame metadata to websocket clients at a fixed
// interval, whether or not a new frame was published in between.
type MetaPusher struct {
	Store *pipeline.Store
	// Interval returns the delay between pushes.
	Interval func() time.Duration

	upgrader websocket.Upgrader
}

func NewMetaPusher(store *pipeline.Store, interval func() time.Duration) *MetaPusher {
	return &MetaPusher{
		Store:    store,
		Interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (m *MetaPusher) interval() time.Duration {
	if m.Interval == nil {
		return defaultMetaInterval
	}
	if d := m.Interval(); d > 0 {
		return d
	}
	return defaultMetaInterval
}

func (m *MetaPusher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for detection stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *MetaPusher) serve(ws *websocket.Conn) {
	clog := log.WithFields(log.Fields{
		"addr":   ws.RemoteAddr(),
		"client": uuid.NewString(),
	})
	clog.Info("connected to detection socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from detection socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	push := time.NewTimer(0)
	defer push.Stop()
	for {
		select {
		case <-closed:
			return
		case <-push.C:
			js, err := pipeline.MarshalMeta(m.Store.Latest())
			if err != nil {
				clog.Errorf("Failed to encode metadata: %v", err)
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, js); err != nil {
				return
			}
			push.Reset(m.interval())
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
