package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Server, *atomic.Bool) {
	t.Helper()

	shutdown := &atomic.Bool{}
	srv := New("127.0.0.1", 0, shutdown)
	require.NoError(t, srv.Bind())

	go srv.Serve()
	require.Eventually(t, srv.Running, time.Second, 5*time.Millisecond)

	t.Cleanup(srv.Stop)
	return srv, shutdown
}

// doRequest writes one raw HTTP request and reads the full response.
func doRequest(t *testing.T, addr net.Addr, raw string) (int, string) {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)

	head, body, found := strings.Cut(string(resp), "\r\n\r\n")
	require.True(t, found, "response missing header/body separator: %q", resp)

	fields := strings.Fields(strings.SplitN(head, "\r\n", 2)[0])
	require.GreaterOrEqual(t, len(fields), 2, "bad status line: %q", head)
	status, err := strconv.Atoi(fields[1])
	require.NoError(t, err)

	return status, body
}

func get(path string) string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", path)
}

func post(path, body string) string {
	return fmt.Sprintf("POST %s HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
		path, len(body), body)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), get("/health"))
	assert.Equal(t, 200, status)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Contains(t, payload["message"], "running")
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), get("/v1/models"))
	assert.Equal(t, 200, status)

	var list ModelList
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	assert.Equal(t, modelID, list.Data[0].ID)
	assert.Greater(t, list.Data[0].Created, int64(0))
}

func TestChatCompletionGreeting(t *testing.T) {
	srv, _ := startTestServer(t)

	reqBody := `{"messages":[{"role":"user","content":"hello"}]}`
	status, body := doRequest(t, srv.Addr(), post("/v1/chat/completions", reqBody))
	assert.Equal(t, 200, status)

	var completion ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(body), &completion))
	require.Len(t, completion.Choices, 1)
	assert.Contains(t, completion.Choices[0].Message.Content, "Hello")
	assert.True(t, strings.HasPrefix(completion.ID, "chatcmpl-"))
	assert.Equal(t, "stop", completion.Choices[0].FinishReason)
}

func TestChatCompletionKeywords(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		contains   string
	}{
		{"greeting", `{"content":"hi there"}`, 200, "Hello"},
		{"config", `{"content":"show config"}`, 200, "temperature=0.7"},
		{"simulated error", `{"content":"error"}`, 500, "Simulated"},
		{"generic", `{"content":"what is the weather"}`, 200, "simulated response"},
	}

	srv, _ := startTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, srv.Addr(), post("/v1/chat/completions", tt.body))
			assert.Equal(t, tt.wantStatus, status)
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestChatCompletionEmptyBody(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), post("/v1/chat/completions", ""))
	assert.Equal(t, 400, status)
	assert.Contains(t, body, "empty")
}

func TestChatCompletionInvalidJSON(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), post("/v1/chat/completions", "not json at all"))
	assert.Equal(t, 400, status)
	assert.Contains(t, body, "Invalid JSON")
}

func TestNotFound(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), get("/nope"))
	assert.Equal(t, 404, status)
	assert.Contains(t, body, "Not found")
}

func TestFaultInjectionPaths(t *testing.T) {
	srv, _ := startTestServer(t)

	tests := []string{"/v1/models/error", "/failover", "/health-error"}
	for _, path := range tests {
		status, body := doRequest(t, srv.Addr(), get(path))
		assert.Equal(t, 500, status, "path %s", path)
		assert.Contains(t, body, "Simulated server error")
	}

	// POST is overridden too
	status, _ := doRequest(t, srv.Addr(), post("/v1/chat/completions/fail", `{"content":"hello"}`))
	assert.Equal(t, 500, status)
}

func TestShutdownEndpointIsInformational(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), get("/shutdown"))
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "Use /stop")

	// The endpoint must not terminate anything
	status, _ = doRequest(t, srv.Addr(), get("/health"))
	assert.Equal(t, 200, status)
}

func TestStopEndpointInvokesHardStop(t *testing.T) {
	shutdown := &atomic.Bool{}
	srv := New("127.0.0.1", 0, shutdown)
	require.NoError(t, srv.Bind())

	var stops atomic.Int32
	srv.OnHardStop(func() { stops.Add(1) })

	go srv.Serve()
	require.Eventually(t, srv.Running, time.Second, 5*time.Millisecond)
	t.Cleanup(srv.Stop)

	for _, raw := range []string{post("/stop", ""), get("/stop")} {
		status, body := doRequest(t, srv.Addr(), raw)
		assert.Equal(t, 200, status)
		assert.Contains(t, body, "shutdown initiated")
	}

	require.Eventually(t, func() bool { return stops.Load() == 2 }, time.Second, 5*time.Millisecond)
	// Hard stop must not go through the cooperative flag
	assert.False(t, shutdown.Load())
}

func TestMalformedRequestLine(t *testing.T) {
	srv, _ := startTestServer(t)

	status, body := doRequest(t, srv.Addr(), "GARBAGE\r\n\r\n")
	assert.Equal(t, 400, status)
	assert.Contains(t, body, "Invalid request line")
}

func TestStopClosesListener(t *testing.T) {
	srv, _ := startTestServer(t)
	addr := srv.Addr().String()

	srv.Stop()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return false
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, StateStopped, srv.State())

	// Stop is a no-op once stopped
	srv.Stop()
	assert.Equal(t, StateStopped, srv.State())
}

func TestShutdownFlagExitsAcceptLoop(t *testing.T) {
	srv, shutdown := startTestServer(t)

	shutdown.Store(true)
	require.Eventually(t, func() bool {
		return srv.State() == StateStopped
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServeRequiresBind(t *testing.T) {
	srv := New("127.0.0.1", 0, &atomic.Bool{})
	assert.ErrorIs(t, srv.Serve(), ErrNotBound)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantMethod string
		wantPath   string
		wantBody   string
		wantOK     bool
	}{
		{"get with headers", "GET /health HTTP/1.1\r\nHost: x\r\n\r\n", "GET", "/health", "", true},
		{"post with body", "POST /v1/chat/completions HTTP/1.1\r\nHost: x\r\n\r\n{\"a\":1}", "POST", "/v1/chat/completions", `{"a":1}`, true},
		{"no headers", "POST /x HTTP/1.1\r\n\r\nbody", "POST", "/x", "body", true},
		{"garbage", "GARBAGE\r\n\r\n", "", "", "", false},
		{"empty", "", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, path, body, ok := parseRequest(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantMethod, method)
				assert.Equal(t, tt.wantPath, path)
				assert.Equal(t, tt.wantBody, body)
			}
		})
	}
}

func TestHTTPResponseFormat(t *testing.T) {
	resp := httpResponse(200, `{"ok":true}`)
	assert.Contains(t, resp, "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, resp, "Content-Type: application/json\r\n")
	assert.Contains(t, resp, "Access-Control-Allow-Origin: *\r\n")
	assert.Contains(t, resp, fmt.Sprintf("Content-Length: %d\r\n", len(`{"ok":true}`)))
	assert.True(t, strings.HasSuffix(resp, `{"ok":true}`))
}
