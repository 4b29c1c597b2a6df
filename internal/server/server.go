package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/llmrc/llmrc/internal/logger"
	"github.com/llmrc/llmrc/internal/metrics"
)

// State tracks the server lifecycle: Created -> Bound -> Running -> Stopping
// -> Stopped. There is no transition back from Stopped.
type State int32

const (
	StateCreated State = iota
	StateBound
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var ErrNotBound = errors.New("server is not bound")

const (
	// Single bounded read per connection; anything beyond this is ignored.
	maxRequestBytes = 8 * 1024

	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second

	// How long a blocking accept waits before re-checking the shutdown flag.
	acceptInterval = 500 * time.Millisecond
)

// Server accepts inbound connections and produces an HTTP-shaped response for
// each. It keeps no per-client state across requests. The listening socket is
// exclusively owned by the Server.
type Server struct {
	host string
	port int

	listener net.Listener
	state    atomic.Int32

	// Cooperative shutdown flag shared with the engine's supervisory loop.
	// The accept loop observes it but never clears it.
	shutdown *atomic.Bool

	// Invoked by the /stop route after the acknowledgment is written.
	// Defaults to immediate process termination; tests inject a stand-in.
	hardStop func()
}

// New creates an unbound server. The shutdown flag is shared with the owner
// and observed by the accept loop.
func New(host string, port int, shutdown *atomic.Bool) *Server {
	return &Server{
		host:     host,
		port:     port,
		shutdown: shutdown,
		hardStop: func() { os.Exit(0) },
	}
}

// OnHardStop replaces the process-exit behavior of the /stop route. Must be
// called before Serve.
func (s *Server) OnHardStop(fn func()) {
	if fn != nil {
		s.hardStop = fn
	}
}

// Bind acquires the listening socket. Bind failures (address in use,
// permission denied) are fatal for this server instance.
func (s *Server) Bind() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.listener = ln
	s.state.Store(int32(StateBound))
	logger.Log.Info("API server bound", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Running reports whether the accept loop is active.
func (s *Server) Running() bool {
	return s.State() == StateRunning
}

// Serve runs the accept loop until Stop is called or the shared shutdown
// flag is set. Each accepted connection is handled on its own goroutine;
// handlers never block the accept loop. Transient accept errors are logged
// and the loop continues.
func (s *Server) Serve() error {
	if !s.state.CompareAndSwap(int32(StateBound), int32(StateRunning)) {
		return ErrNotBound
	}
	logger.Log.Info("API server started", "addr", s.listener.Addr().String())

	for {
		if s.shutdown.Load() {
			break
		}

		if tl, ok := s.listener.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(acceptInterval))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.State() != StateRunning {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Log.Error("accept failed", "error", err)
			continue
		}

		go s.handleConn(conn)
	}

	s.state.Store(int32(StateStopped))
	s.listener.Close()
	logger.Log.Info("API server stopped")
	return nil
}

// Stop requests the accept loop to exit and closes the listening socket to
// release the port promptly. A no-op unless the server is running.
func (s *Server) Stop() {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		s.listener.Close()
		return
	}
	// Bound but never served: close the socket so a pending Serve cannot start.
	if s.state.CompareAndSwap(int32(StateBound), int32(StateStopped)) {
		s.listener.Close()
	}
}

// handleConn performs a single bounded read, dispatches the request line
// against the fixed route table, and writes one response. Read and write
// failures are logged and the connection dropped; they never reach the
// accept loop.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil {
		logger.Log.Error("failed to read request", "remote", remote, "error", err)
		metrics.RecordConnectionError("read")
		return
	}
	raw := string(buf[:n])

	method, path, reqBody, ok := parseRequest(raw)

	var status int
	var respBody string
	var hard bool
	if !ok {
		status, respBody = 400, `{"error":"Invalid request line"}`
	} else {
		status, respBody, hard = s.route(method, path, reqBody)
	}

	// Fault-injection override: applied after route dispatch and before the
	// real response is written, regardless of the matched route.
	if strings.Contains(path, "error") || strings.Contains(path, "fail") {
		status = 500
		respBody = `{"error":"Internal server error","message":"Simulated server error"}`
		hard = false
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write([]byte(httpResponse(status, respBody))); err != nil {
		logger.Log.Error("failed to write response", "remote", remote, "error", err)
		metrics.RecordConnectionError("write")
		return
	}

	logger.Log.HTTPRequest(remote, method, path, status)
	metrics.RecordRequest(method, path, logger.StatusCategory(status), time.Since(start))

	if hard {
		logger.Log.Info("shutdown requested, terminating process", "remote", remote)
		s.hardStop()
	}
}

// parseRequest extracts method, path and body from a raw HTTP/1.1 request.
// Only the first request line is interpreted; headers are skipped.
func parseRequest(raw string) (method, path, body string, ok bool) {
	line, rest, _ := strings.Cut(raw, "\r\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", "", false
	}
	method, path = fields[0], fields[1]

	if _, after, found := strings.Cut("\r\n"+rest, "\r\n\r\n"); found {
		body = after
	}
	return method, path, body, true
}
