package wsapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wirow-io/mediaserver/internal/room"
	"github.com/wirow-io/mediaserver/internal/sfu"
)

// Server is the WebSocket Command Layer of §4.8: an HTTP ticket
// handshake route plus the `/ws/channel` upgrade and its command
// dispatcher, wired against the Resource Registry / Load Balancer and
// the Room Domain.
type Server struct {
	lb          *sfu.LoadBalancer
	registry    *sfu.Registry
	bus         *sfu.EventBus
	rooms       *room.Manager
	store       *room.Store
	taskPool    *room.TaskPool
	mediaCodecs []sfu.RtpCodecCapability
	logger      sfu.Logger

	upgrader   websocket.Upgrader
	dispatcher *Dispatcher
	listenIP   sfu.WebRtcTransportListenIp

	mu            sync.Mutex
	connsByMember map[*room.Member]*Connection
	done          chan struct{}
}

func NewServer(lb *sfu.LoadBalancer, registry *sfu.Registry, bus *sfu.EventBus, store *room.Store, mediaCodecs []sfu.RtpCodecCapability) *Server {
	s := &Server{
		lb:            lb,
		registry:      registry,
		bus:           bus,
		rooms:         room.NewManager(),
		store:         store,
		taskPool:      room.NewTaskPool(8),
		mediaCodecs:   mediaCodecs,
		logger:        sfu.NewLogger("wsapi"),
		connsByMember: make(map[*room.Member]*Connection),
		done:          make(chan struct{}),
		listenIP:      sfu.WebRtcTransportListenIp{Ip: "0.0.0.0"},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin checking is the caller's concern (reverse proxy /
			// auth layer); out of scope here per spec.md §1.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.dispatcher = newDispatcher()
	registerHandlers(s.dispatcher)
	go s.runTicketSweeper(s.done)
	return s
}

func (s *Server) Close() {
	close(s.done)
	s.taskPool.Close()
}

// RegisterRoutes mounts the ticket handshake and WS upgrade routes on
// a gin engine (§6.2, §4.8).
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/ws/ticket", s.handleTicket)
	engine.GET("/ws/channel", s.handleChannel)
}

// handleTicket issues a short-lived ticket bound to the caller's
// session (§4.8). Session identity is supplied upstream (auth is out
// of scope); we read it off a header the auth layer is expected to set.
func (s *Server) handleTicket(c *gin.Context) {
	sessionID := c.GetHeader("X-Session-Id")
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "error.invalid_input"})
		return
	}
	t, err := s.issueTicket(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.unspecified"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": t.Value})
}

// handleChannel upgrades to a WebSocket and requires the first frame
// to be exactly the ticket (§4.8, §6.2).
func (s *Server) handleChannel(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed: %v", err)
		return
	}

	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, ticketBytes, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return
	}
	sessionID, ok := s.resolveTicket(string(ticketBytes))
	if !ok {
		ws.WriteJSON(map[string]interface{}{"error": "error.invalid_input"})
		ws.Close()
		return
	}
	ws.SetReadDeadline(time.Time{})

	conn := &Connection{
		ws:        ws,
		server:    s,
		sessionID: sessionID,
	}
	s.runConnection(conn)
}

// runConnection is the per-connection read loop (§4.8 Dispatcher).
func (s *Server) runConnection(conn *Connection) {
	defer conn.cleanup()
	for {
		var frame map[string]interface{}
		if err := conn.ws.ReadJSON(&frame); err != nil {
			return
		}
		resp := s.dispatcher.Dispatch(conn, frame)
		if resp == nil {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) registerMemberConn(m *room.Member, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connsByMember[m] = conn
}

func (s *Server) unregisterMemberConn(m *room.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connsByMember, m)
}

// SendToMember implements room.Broadcaster.
func (s *Server) SendToMember(m *room.Member, msg interface{}) {
	s.mu.Lock()
	conn, ok := s.connsByMember[m]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.WriteJSON(msg)
}

// Connection is one live WS client (§4.8). It holds at most one active
// Room membership at a time (a client leaves before joining another
// room).
type Connection struct {
	ws        *websocket.Conn
	server    *Server
	sessionID string

	mu     sync.Mutex
	userID string
	room   *room.Room
	member *room.Member
}

func (c *Connection) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Connection) setMembership(r *room.Room, m *room.Member) {
	c.mu.Lock()
	c.room = r
	c.member = m
	c.mu.Unlock()
	c.server.registerMemberConn(m, c)
}

func (c *Connection) membership() (*room.Room, *room.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.member
}

func (c *Connection) clearMembership() {
	c.mu.Lock()
	m := c.member
	c.room = nil
	c.member = nil
	c.mu.Unlock()
	if m != nil {
		c.server.unregisterMemberConn(m)
	}
}

func (c *Connection) cleanup() {
	r, m := c.membership()
	if r != nil && m != nil {
		r.Leave(m)
	}
	c.clearMembership()
	c.ws.Close()
}
