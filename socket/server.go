package socket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"

	"matching_service/metrics"
	"matching_service/models"
	"matching_service/utils"
)

// State is a connection's position in UNAUTHENTICATED -> AUTHENTICATED -> CLOSED
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is stored as the connection context
type Session struct {
	UserID string
	Role   string
	State  State
}

// Withdrawer removes a user's queued request when their connection drops
type Withdrawer interface {
	Withdraw(ctx context.Context, userID string) error
}

// Server authenticates realtime connections and keeps the registry current.
type Server struct {
	IO       *socketio.Server
	Notifier *Notifier
	Verifier *utils.TokenVerifier
	Matcher  Withdrawer
	Metrics  *metrics.Collectors
}

// NewSocketServer initializes and returns a new Socket.IO server
func NewSocketServer(notifier *Notifier, verifier *utils.TokenVerifier, matcher Withdrawer, m *metrics.Collectors, checkOrigin func(*http.Request) bool) *Server {
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: checkOrigin},
			&websocket.Transport{CheckOrigin: checkOrigin},
		},
	})
	s := &Server{IO: io, Notifier: notifier, Verifier: verifier, Matcher: matcher, Metrics: m}

	io.OnConnect("/", func(c socketio.Conn) error {
		u := c.URL()
		session := s.HandleConnect(c, c.RemoteHeader(), u.Query())
		c.SetContext(session)
		return nil
	})

	io.OnError("/", func(c socketio.Conn, err error) {
		log.Printf("❌ Socket error: %v", err)
	})

	io.OnDisconnect("/", func(c socketio.Conn, reason string) {
		session, _ := c.Context().(*Session)
		s.HandleDisconnect(c, session, reason)
	})

	return s
}

// HandleConnect authenticates the handshake. A refused connection is told why and closed;
// an accepted one replaces any live connection for the same user.
func (s *Server) HandleConnect(c Client, header http.Header, query url.Values) *Session {
	session := &Session{State: StateUnauthenticated}

	claims, err := s.Verifier.Verify(utils.BearerToken(header, query.Get))
	if err != nil {
		label := "invalid_token"
		if errors.Is(err, models.ErrForbidden) {
			label = "forbidden"
		}
		s.Metrics.RejectedSockets.WithLabelValues(label).Inc()
		log.Printf("❌ Refusing socket %s: %v", c.ID(), err)
		session.State = StateClosed
		// The handshake runs before the connection's write loop starts, so the emit cannot happen inline.
		go s.Notifier.closeWithReason(c, models.ReasonUnauthenticated+": "+err.Error())
		return session
	}

	session.UserID = claims.UserID
	session.Role = claims.UserRole
	session.State = StateAuthenticated

	if previous := s.Notifier.Registry.Register(claims.UserID, c); previous != nil {
		log.Printf("🔁 User %s reconnected, evicting socket %s", claims.UserID, previous.ID())
		go s.Notifier.closeWithReason(previous, models.ReasonReplaced)
	}
	s.Metrics.ActiveConnections.Set(float64(s.Notifier.Registry.Len()))
	log.Println("✅ Socket connected:", c.ID(), "user:", claims.UserID)
	return session
}

// HandleDisconnect unregisters the connection. When it was still the user's live connection
// the user's queued request is withdrawn, as nobody is left to receive the outcome.
func (s *Server) HandleDisconnect(c Client, session *Session, reason string) {
	if session == nil || session.UserID == "" {
		return
	}
	session.State = StateClosed
	if !s.Notifier.Registry.Remove(session.UserID, c) {
		return
	}
	s.Metrics.ActiveConnections.Set(float64(s.Notifier.Registry.Len()))
	log.Printf("❌ Socket disconnected for %s: %s", session.UserID, reason)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Matcher.Withdraw(ctx, session.UserID); err != nil {
		log.Printf("❌ Failed to withdraw %s after disconnect: %v", session.UserID, err)
	}
}

// Serve runs the socket.io event loop until Close
func (s *Server) Serve() error {
	return s.IO.Serve()
}

func (s *Server) Close() error {
	return s.IO.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.IO.ServeHTTP(w, r)
}
