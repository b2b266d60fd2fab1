package streamer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/broker-streamer/internal/hub"
)

const okResponse = `{"isSucceeded":true,"subcount":1}`

type call struct {
	Target string
	Args   []any
}

// fakeConn records invocations and lets tests drive pushes and closes.
type fakeConn struct {
	mu            sync.Mutex
	startErr      error
	startDrop     error // when set, Start closes the link before returning nil
	results       map[string]string
	errs          map[string]error
	calls         []call
	starts        int
	closes        int
	pushHandlers  map[string]hub.PushHandler
	closeHandlers []func(error)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		results:      make(map[string]string),
		errs:         make(map[string]error),
		pushHandlers: make(map[string]hub.PushHandler),
	}
}

func (f *fakeConn) Start(ctx context.Context) error {
	f.mu.Lock()
	f.starts++
	err, cause := f.startErr, f.startDrop
	f.startDrop = nil
	f.mu.Unlock()

	if err == nil && cause != nil {
		f.drop(cause)
	}
	return err
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.drop(nil)
	return nil
}

func (f *fakeConn) Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Target: target, Args: args})
	if err := f.errs[target]; err != nil {
		return nil, err
	}
	if res, ok := f.results[target]; ok {
		return json.RawMessage(res), nil
	}
	return json.RawMessage(okResponse), nil
}

func (f *fakeConn) On(target string, h hub.PushHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushHandlers[target] = h
}

func (f *fakeConn) OnClose(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeHandlers = append(f.closeHandlers, fn)
}

// drop simulates the connection going away.
func (f *fakeConn) drop(cause error) {
	f.mu.Lock()
	handlers := append([]func(error){}, f.closeHandlers...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(cause)
	}
}

func (f *fakeConn) push(target, payload string) {
	f.mu.Lock()
	h := f.pushHandlers[target]
	f.mu.Unlock()
	if h != nil {
		h([]json.RawMessage{json.RawMessage(payload)}, time.Now())
	}
}

func (f *fakeConn) setResult(target, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[target] = result
}

func (f *fakeConn) setErr(target string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[target] = err
}

func (f *fakeConn) dropDuringStart(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startDrop = cause
}

func (f *fakeConn) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

// takeCalls returns and clears the recorded invocations.
func (f *fakeConn) takeCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

func targets(calls []call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Target)
	}
	return out
}

type reported struct {
	Code        ErrorCode
	Description string
}

// errorRecorder is an ErrorHandler that keeps every report.
type errorRecorder struct {
	mu      sync.Mutex
	reports []reported
}

func (r *errorRecorder) handle(code ErrorCode, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reported{Code: code, Description: description})
}

func (r *errorRecorder) all() []reported {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reported(nil), r.reports...)
}

// account is a mutable subscription source.
type account struct {
	mu  sync.Mutex
	sub Subscription
}

func (a *account) get() Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sub
}

func (a *account) set(sub Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sub = sub
}

type fixture struct {
	session *Session
	conn    *fakeConn
	errors  *errorRecorder
	account *account
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		conn:    newFakeConn(),
		errors:  &errorRecorder{},
		account: &account{sub: Subscription{ActiveAccountNumber: "12345678", AccessToken: "token-1"}},
	}
	base := []Option{
		WithConnectionFactory(func() Connection { return f.conn }),
		WithErrorHandler(f.errors.handle),
		WithSubscription(f.account.get),
	}
	f.session = NewSession(DefaultConfig(), append(base, opts...)...)
	t.Cleanup(func() { _ = f.session.Close(context.Background()) })
	return f
}
