package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockHubServer creates a test hub server. The handler runs after the
// protocol handshake has been accepted.
func mockHubServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			t.Logf("handshake read error: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("{}\x1e")); err != nil {
			return
		}

		handler(conn, r)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(server *httptest.Server) Config {
	cfg := DefaultConfig()
	cfg.URL = wsURL(server)
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.InvokeTimeout = 2 * time.Second
	return cfg
}

// readInvocation reads records until a client invocation arrives.
func readInvocation(conn *websocket.Conn) (message, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return message{}, err
		}
		for _, rec := range splitRecords(data) {
			var msg message
			if err := json.Unmarshal(rec, &msg); err != nil {
				return message{}, err
			}
			if msg.Type == typeInvocation {
				return msg, nil
			}
		}
	}
}

func writeRecord(conn *websocket.Conn, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// drain keeps reading until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClient_StartAndClose(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := mockHubServer(t, func(conn *websocket.Conn, r *http.Request) {
		requests <- r
		drain(conn)
	})
	defer server.Close()

	cfg := testConfig(server)
	cfg.Token = func() string { return "token-123" }
	cfg.Params = func() url.Values { return url.Values{"accountNumber": {"ACC-1"}} }
	cfg.UserAgent = "broker-streamer/test"

	client := NewClient(cfg, nil)

	var closeErr error
	closed := make(chan struct{})
	client.OnClose(func(err error) {
		closeErr = err
		close(closed)
	})

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	r := <-requests
	if got := r.URL.Query().Get("access_token"); got != "token-123" {
		t.Errorf("access_token = %q, want %q", got, "token-123")
	}
	if got := r.URL.Query().Get("accountNumber"); got != "ACC-1" {
		t.Errorf("accountNumber = %q, want %q", got, "ACC-1")
	}
	if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer token-123")
	}
	if got := r.Header.Get("User-Agent"); got != "broker-streamer/test" {
		t.Errorf("User-Agent = %q, want %q", got, "broker-streamer/test")
	}

	if err := client.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close handler not called")
	}
	if closeErr != nil {
		t.Errorf("close handler error = %v, want nil", closeErr)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_Invoke(t *testing.T) {
	received := make(chan message, 1)
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		msg, err := readInvocation(conn)
		if err != nil {
			return
		}
		received <- msg
		writeRecord(conn, message{
			Type:         typeCompletion,
			InvocationID: msg.InvocationID,
			Result:       json.RawMessage(`{"isSucceeded":true,"subcount":2}`),
		})
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer client.Close()

	result, err := client.Invoke(context.Background(), "SubscribeQuotes", "ACC-1", []string{"X", "Y"}, "TopOfBook")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(result) != `{"isSucceeded":true,"subcount":2}` {
		t.Errorf("result = %s", result)
	}

	msg := <-received
	if msg.Target != "SubscribeQuotes" {
		t.Errorf("Target = %q, want SubscribeQuotes", msg.Target)
	}
	if msg.InvocationID == "" {
		t.Error("expected an invocation id")
	}
	if len(msg.Arguments) != 3 {
		t.Fatalf("len(Arguments) = %d, want 3", len(msg.Arguments))
	}
	if string(msg.Arguments[1]) != `["X","Y"]` {
		t.Errorf("Arguments[1] = %s, want [\"X\",\"Y\"]", msg.Arguments[1])
	}
}

func TestClient_InvokeWithoutArguments(t *testing.T) {
	received := make(chan message, 1)
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		msg, err := readInvocation(conn)
		if err != nil {
			return
		}
		received <- msg
		writeRecord(conn, message{Type: typeCompletion, InvocationID: msg.InvocationID})
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer client.Close()

	if _, err := client.Invoke(context.Background(), "UnSubscribeNews"); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	msg := <-received
	if msg.Arguments == nil || len(msg.Arguments) != 0 {
		t.Errorf("Arguments = %v, want empty array", msg.Arguments)
	}
}

func TestClient_InvokeError(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		msg, err := readInvocation(conn)
		if err != nil {
			return
		}
		writeRecord(conn, message{
			Type:         typeCompletion,
			InvocationID: msg.InvocationID,
			Error:        "Unauthorized",
		})
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer client.Close()

	_, err := client.Invoke(context.Background(), "SubscribeNews", "ACC-1")

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("error = %v, want *InvocationError", err)
	}
	if invErr.Target != "SubscribeNews" || invErr.Message != "Unauthorized" {
		t.Errorf("InvocationError = %+v", invErr)
	}
}

func TestClient_InvokeNotConnected(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	if _, err := client.Invoke(context.Background(), "SubscribeNews"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestClient_InvokeFailsWhenConnectionDrops(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readInvocation(conn); err != nil {
			return
		}
		// Drop without a completion
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := client.Invoke(context.Background(), "SubscribeOrders", "ACC-1")
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("error = %v, want ErrConnectionClosed", err)
	}
}

func TestClient_InvokeTimeout(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drain(conn)
	})
	defer server.Close()

	cfg := testConfig(server)
	cfg.InvokeTimeout = 50 * time.Millisecond
	client := NewClient(cfg, nil)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer client.Close()

	_, err := client.Invoke(context.Background(), "ExtendSubscriptions", "token")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClient_PushHandlers(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		// Two records in one frame
		first, _ := encodeRecord(message{Type: typeInvocation, Target: "quote", Arguments: []json.RawMessage{json.RawMessage(`{"id":"1"}`)}})
		second, _ := encodeRecord(message{Type: typeInvocation, Target: "News", Arguments: []json.RawMessage{json.RawMessage(`{"head":"h"}`)}})
		conn.WriteMessage(websocket.TextMessage, append(first, second...))
		writeRecord(conn, message{Type: typePing})
		writeRecord(conn, message{Type: typeInvocation, Target: "Unregistered"})
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 2)
	client.On("Quote", func(args []json.RawMessage, receivedAt time.Time) {
		mu.Lock()
		got = append(got, "quote:"+string(args[0]))
		mu.Unlock()
		if receivedAt.IsZero() {
			t.Error("receivedAt not set")
		}
		done <- struct{}{}
	})
	client.On("News", func(args []json.RawMessage, _ time.Time) {
		mu.Lock()
		got = append(got, "news:"+string(args[0]))
		mu.Unlock()
		done <- struct{}{}
	})

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer client.Close()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for push")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{`quote:{"id":"1"}`, `news:{"head":"h"}`}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("pushes = %v, want %v", got, want)
	}
}

func TestClient_ServerClose(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeRecord(conn, message{Type: typeClose, Error: "session expired"})
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	closed := make(chan error, 1)
	client.OnClose(func(err error) { closed <- err })

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-closed:
		var closeErr *ServerCloseError
		if !errors.As(err, &closeErr) {
			t.Fatalf("close error = %v, want *ServerCloseError", err)
		}
		if closeErr.Message != "session expired" {
			t.Errorf("Message = %q, want %q", closeErr.Message, "session expired")
		}
	case <-time.After(time.Second):
		t.Fatal("close handler not called")
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after server close")
	}
}

func TestClient_EveryCloseHandlerRuns(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeRecord(conn, message{Type: typeClose, Error: "bye"})
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	closed := make(chan int, 2)
	client.OnClose(func(error) { closed <- 1 })
	client.OnClose(func(error) { closed <- 2 })

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := map[int]bool{}
	for len(got) < 2 {
		select {
		case n := <-closed:
			got[n] = true
		case <-time.After(time.Second):
			t.Fatalf("close handlers called: %v, want both", got)
		}
	}
}

func TestClient_ServerDropAndRestart(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()
		if n == 1 {
			return // drop the first connection
		}
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	closed := make(chan error, 2)
	client.OnClose(func(err error) { closed <- err })

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-closed:
		if err == nil {
			t.Error("expected a non-nil cause for an unsolicited close")
		}
	case <-time.After(time.Second):
		t.Fatal("close handler not called")
	}

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected after restart")
	}
	client.Close()
}

func TestClient_ServerTimeout(t *testing.T) {
	server := mockHubServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drain(conn)
	})
	defer server.Close()

	cfg := testConfig(server)
	cfg.KeepAliveInterval = 20 * time.Millisecond
	cfg.ServerTimeout = 60 * time.Millisecond
	client := NewClient(cfg, nil)

	closed := make(chan error, 1)
	client.OnClose(func(err error) { closed <- err })

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-closed:
		if !errors.Is(err, ErrServerTimeout) {
			t.Errorf("close error = %v, want ErrServerTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale connection not detected")
	}
}

func TestClient_HandshakeRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"Requested protocol 'json' is not available."}`+"\x1e"))
		drain(conn)
	}))
	defer server.Close()

	client := NewClient(testConfig(server), nil)

	err := client.Start(context.Background())
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("error = %v, want ErrHandshake", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false")
	}
}

func TestClient_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server), nil)

	err := client.Start(context.Background())
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v, want status 401", err)
	}
}

func TestParseHandshake(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		trailing int
		wantErr  bool
	}{
		{name: "empty object", frame: "{}\x1e"},
		{name: "trailing records", frame: "{}\x1e{\"type\":6}\x1e{\"type\":6}\x1e", trailing: 2},
		{name: "error", frame: "{\"error\":\"nope\"}\x1e", wantErr: true},
		{name: "empty frame", frame: "", wantErr: true},
		{name: "garbage", frame: "not json\x1e", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trailing, err := parseHandshake([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, ErrHandshake) {
					t.Errorf("error = %v, want ErrHandshake", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(trailing) != tt.trailing {
				t.Errorf("len(trailing) = %d, want %d", len(trailing), tt.trailing)
			}
		})
	}
}
