package uplink

import (
	"crypto/tls"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	// gorilla/websocket is the most popular WebSocket library for Go.
	// It provides a complete implementation of the WebSocket protocol
	// with support for reading/writing messages, ping/pong, and close handling.
	"github.com/gorilla/websocket"

	"github.com/google/uuid"

	"github.com/agentdeck/uplink/internal/action"
	"github.com/agentdeck/uplink/internal/auth"
	apperrors "github.com/agentdeck/uplink/internal/errors"
	"github.com/agentdeck/uplink/internal/stats"
)

// channelBufferSize is the buffer size for per-client send channels.
// The buffer absorbs bursts of responses without blocking the dispatcher;
// if it fills, messages are dropped for that client.
const channelBufferSize = 64

// Options configures a Server. The server is constructed explicitly and
// injected into the hosting process; there is no package-level default
// instance.
type Options struct {
	// Addr is the host:port to bind (e.g., "127.0.0.1:7465").
	Addr string

	// Name is the server name reported by /api/info.
	Name string

	// Version is the build version reported by /api/info.
	Version string

	// Gate decides connection admission. Required.
	Gate *auth.Gate

	// Registry resolves action names to handlers. Required.
	Registry *action.Registry

	// Stats is the invocation log. Optional; nil disables persistence.
	Stats *stats.Store

	// RequestTimeout bounds action handler execution. Zero disables the
	// timeout, which matches the reference behavior.
	RequestTimeout time.Duration

	// TLSCert and TLSKey are paths to a certificate pair. When both are
	// set, the server only accepts HTTPS/WSS connections.
	TLSCert string
	TLSKey  string
}

// Server is the WebSocket action server. It owns the accept loop, the
// connection registry, and the per-connection dispatchers. One Server
// handles multiple concurrent clients; each client gets its own read and
// write goroutines so a slow client never blocks the others.
type Server struct {
	opts Options

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// mu protects clients, running, httpServer, listener, and startedAt.
	mu sync.RWMutex

	// clients tracks all admitted connections by their minted id.
	// A connection is present iff its socket is open and it passed the
	// admission gate.
	clients map[string]*Client

	// running indicates whether Start has succeeded and Stop has not
	// yet run. Guards both lifecycle directions for idempotence.
	running bool

	// httpServer is the underlying HTTP server for shutdown.
	httpServer *http.Server

	// listener is the bound listener, kept for BoundAddr.
	listener net.Listener

	// startedAt is when Start succeeded, used for /health uptime.
	startedAt time.Time
}

// Client represents a single admitted WebSocket connection.
// Each client has its own goroutine for writing messages, which prevents
// slow clients from blocking the dispatcher.
type Client struct {
	// id is the server-minted opaque connection identifier.
	id string

	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing envelopes. The write
	// goroutine reads from this and sends to the WebSocket.
	send chan any

	// done is closed to signal the client should shut down.
	// Used to coordinate clean shutdown without racing on send.
	done chan struct{}

	// closeOnce ensures done is only closed once. Both Stop() and
	// readPump() may try to close it.
	closeOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// remoteAddr is the peer address, kept for logging.
	remoteAddr string

	// connectedAt is when the connection was admitted.
	connectedAt time.Time
}

// signalClose marks the client for shutdown exactly once.
// Safe to call multiple times from different goroutines. Only the done
// channel is closed (never send) to avoid racing with in-flight sends;
// all senders check done before sending.
func (c *Client) signalClose() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// NewServer creates an uplink server. Call Start() to begin accepting
// connections.
func NewServer(opts Options) *Server {
	return &Server{
		opts:    opts,
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			// The API key is the admission control; origin checking
			// adds nothing for non-browser orchestrator clients.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start binds the configured address and begins accepting connections.
// The listener is created synchronously so a bind failure is returned to
// the caller and the server stays in the not-running state. Serving then
// continues on a goroutine.
//
// Calling Start on a running server logs a warning and is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		log.Printf("uplink: Start called while already running, ignoring")
		return nil
	}

	// Bind first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.mu.Unlock()
		return apperrors.BindFailed(s.opts.Addr, err)
	}

	tlsEnabled := s.opts.TLSCert != "" && s.opts.TLSKey != ""
	if tlsEnabled {
		cert, err := tls.LoadX509KeyPair(s.opts.TLSCert, s.opts.TLSKey)
		if err != nil {
			ln.Close()
			s.mu.Unlock()
			return apperrors.TLSFailed(err)
		}
		// MinVersion TLS 1.2 excludes older insecure versions.
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	s.httpServer = &http.Server{
		Handler: s.createMux(),
	}
	s.listener = ln
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	go func() {
		if tlsEnabled {
			log.Printf("uplink: listening on %s (TLS enabled)", ln.Addr())
		} else {
			log.Printf("uplink: listening on %s", ln.Addr())
		}
		// Serve blocks until the server is stopped.
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("uplink: server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down in two phases: first every admitted
// connection is signalled to close (clients observe a close event only, no
// goodbye envelope), then the HTTP listener is closed.
//
// Stop on a server that is not running is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false

	// Phase 1: signal all clients. writePump sends a close frame and
	// closes the socket when it sees done; we don't write directly here
	// to avoid racing with in-flight writes.
	for _, client := range s.clients {
		client.signalClose()
	}
	s.clients = make(map[string]*Client)

	httpServer := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	// Phase 2: close the listener and any remaining connections.
	if httpServer != nil {
		return httpServer.Close()
	}
	return nil
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// BoundAddr returns the actual listen address, which differs from the
// configured one when binding port 0. Empty when not running.
func (s *Server) BoundAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of admitted connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// removeClient deregisters a connection by id. Removing an id that is
// already absent is a no-op, so close and error paths can both call it.
func (s *Server) removeClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

// handleWebSocket upgrades an HTTP connection, runs admission, registers
// the client, and starts its pumps. This is called by the HTTP server for
// each new connection to /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// The credential travels as a query parameter because many WebSocket
	// clients cannot set custom headers.
	key := r.URL.Query().Get("apiKey")

	// Upgrade first: the rejection is a wire envelope, not an HTTP
	// status, so the socket has to exist before the gate runs.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("uplink: WebSocket upgrade failed: %v", err)
		return
	}

	if err := s.opts.Gate.Admit(key); err != nil {
		log.Printf("uplink: connection from %s rejected: %v", conn.RemoteAddr(), err)
		// Exactly one error envelope, then close. The client is never
		// registered and never counts toward clientsConnected.
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if data, merr := json.Marshal(NewErrorEnvelope(authFailedMessage)); merr == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.Close()
		return
	}

	client := &Client{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan any, channelBufferSize),
		done:        make(chan struct{}),
		server:      s,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}

	// Register the client. If Stop ran while we were admitting, refuse
	// the registration and drop the socket.
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client.id] = client
	s.mu.Unlock()

	log.Printf("uplink: client %s connected from %s (%d total)", client.id, client.remoteAddr, s.ClientCount())

	// Queue the welcome before starting writePump so it is always the
	// first frame the client sees.
	client.send <- NewWelcomeEnvelope(client.id, s.opts.Registry.Names())

	go client.writePump()
	go client.readPump()
}

// writePump continuously sends envelopes from the send channel to the
// WebSocket. It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	// Pings detect dead connections and keep NAT/firewalls happy.
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signalled; send a bare close frame and exit.
			// No goodbye envelope: clients observe a close event only.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("uplink: failed to marshal envelope: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("uplink: write to client %s failed: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket in arrival order and hands
// them to the dispatcher. It also detects disconnects: when the read
// fails, the client is deregistered and its write pump shut down.
func (c *Client) readPump() {
	defer func() {
		// Deregister on close or transport error. removeClient is
		// idempotent, so racing with Stop() is harmless.
		c.server.removeClient(c.id)
		c.signalClose()
		log.Printf("uplink: client %s disconnected (%d remaining)", c.id, c.server.ClientCount())
	}()

	c.conn.SetReadLimit(512 * 1024) // Max frame size: 512KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	// A pong in response to our ping proves the client is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("uplink: read from client %s failed: %v", c.id, err)
			}
			return
		}

		c.dispatch(data)
	}
}

// trySend queues an envelope for this client without blocking. Envelopes
// for a client that is shutting down are dropped: a handler that outlives
// its connection still completes, but its response has nowhere to go.
func (c *Client) trySend(msg any) {
	select {
	case <-c.done:
		// Client is gone; drop silently.
	case c.send <- msg:
	default:
		log.Printf("uplink: client %s send buffer full, dropping envelope", c.id)
	}
}
