package serve

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"camstream/video"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
)

// StatusUpdater pushes "update" over a websocket whenever a source changes
// state, so clients know to refetch /status.
type StatusUpdater struct {
	upgrader websocket.Upgrader
	cs       map[chan bool]bool
	addc     chan chan bool
	delc     chan chan bool
	notify   chan bool
	closec   chan bool
	closed   sync.Once
}

var _ video.FetcherListener = (*StatusUpdater)(nil)

func NewStatusUpdater() *StatusUpdater {
	m := &StatusUpdater{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan bool]bool),
		addc:   make(chan chan bool),
		delc:   make(chan chan bool),
		notify: make(chan bool, 1),
		closec: make(chan bool),
	}
	go func() {
		for {
			select {
			case c := <-m.addc:
				m.cs[c] = true
			case c := <-m.delc:
				delete(m.cs, c)
			case <-m.notify:
				for c := range m.cs {
					// Clients already holding an update skip this one.
					select {
					case c <- true:
					default:
					}
				}
			case <-m.closec:
				for c := range m.cs {
					close(c)
				}
				return
			}
		}
	}()
	return m
}

// FetcherStateChanged is called on fetcher goroutines and never blocks.
func (m *StatusUpdater) FetcherStateChanged(f *video.Fetcher, s video.State) {
	select {
	case m.notify <- true:
	default:
	}
}

// Close disconnects every client. It is safe to call more than once.
func (m *StatusUpdater) Close() {
	m.closed.Do(func() { close(m.closec) })
}

func (m *StatusUpdater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for status stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *StatusUpdater) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to status update socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from status update socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	notifyc := make(chan bool, 1)
	select {
	case m.addc <- notifyc:
	case <-m.closec:
		return
	}
	defer func() {
		select {
		case m.delc <- notifyc:
		case <-m.closec:
		}
	}()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				ws.Close()
				return
			}
		}
	}()

	for {
		select {
		case _, ok := <-notifyc:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, []byte("update")); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
