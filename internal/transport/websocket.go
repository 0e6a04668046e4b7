// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"pitchscope/internal/analysis"

	"github.com/gorilla/websocket"
)

// SpectrumPath is the WebSocket endpoint.
const SpectrumPath = "/spectrum"

const writeTimeout = time.Second

// Message types sent to WebSocket clients.
const (
	MessageHello  = "hello"
	MessageResult = "result"
)

// Message is the envelope of every WebSocket message.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hello is sent once to every client when it connects.
type Hello struct {
	Geometry analysis.Geometry    `json:"geometry"`
	Guide    []analysis.GuideMark `json:"guide"`
	WindowMs float64              `json:"window_ms"`
}

// NewHello describes a session for frames of the given geometry.
func NewHello(geom analysis.Geometry, settings analysis.Settings) Hello {
	return Hello{
		Geometry: geom,
		Guide:    analysis.FrequencyGuide(geom.SampleRate, geom.Bins),
		WindowMs: settings.WindowMs,
	}
}

// WebSocketTransport implements the Transport interface for WebSocket connections
type WebSocketTransport struct {
	addr      string
	hello     Hello
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	server    *http.Server
	listener  net.Listener
}

// NewWebSocketTransport creates a transport that greets every client with
// hello. Start begins listening; Handler serves without a listener.
func NewWebSocketTransport(addr string, hello Hello) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr:  addr,
		hello: hello,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local visualisers connect from file:// and dev servers
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving SpectrumPath.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SpectrumPath, wst.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("WebSocket server listening on ws://%s%s", ln.Addr(), SpectrumPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("WebSocket server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (wst *WebSocketTransport) Addr() net.Addr {
	if wst.listener == nil {
		return nil
	}
	return wst.listener.Addr()
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("Upgrade error: %v", err)
		return
	}

	// Unregistered connections receive no broadcasts, so the hello goes first.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Message{Type: MessageHello, Data: wst.hello}); err != nil {
		logger.Warnf("Failed to greet client: %v", err)
		conn.Close()
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		logger.Debugf("Transport closed, rejecting client")
		conn.Close()
		return
	default:
	}
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	logger.Infof("Client connected, total: %d", total)

	// Handle disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.drop(conn)
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		logger.Infof("Client disconnected, total: %d", total)
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			msg := Message{Type: MessageResult, Data: data}
			wst.clientsMu.Lock()
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(msg); err != nil {
					logger.Warnf("Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. When clients fall behind the message is
// dropped.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return errors.New("websocket transport is closed")
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		logger.Debugf("Broadcast queue full, dropping message")
	}
	return nil
}

// Close shuts down the WebSocket server
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		logger.Infof("Closing WebSocket transport")
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
