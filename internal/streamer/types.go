package streamer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/broker-streamer/internal/hub"
	"github.com/rickgao/broker-streamer/internal/ledger"
	"github.com/rickgao/broker-streamer/internal/router"
)

// Errors
var (
	ErrUnknownLevel   = errors.New("unknown quote level")
	ErrConnecting     = errors.New("session is connecting")
	ErrStopped        = errors.New("session stopped while connecting")
	ErrConnectionLost = errors.New("connection closed while connecting")
	ErrRejected       = errors.New("request rejected by streamer")
	ErrEmptyResult    = errors.New("empty subscription response")
)

// Hub methods invoked by the session.
const (
	TargetSubscribeQuotes     = "SubscribeQuotes"
	TargetUnSubscribeQuotes   = "UnSubscribeQuotes"
	TargetSubscribeNews       = "SubscribeNews"
	TargetUnSubscribeNews     = "UnSubscribeNews"
	TargetSubscribeOrders     = "SubscribeOrders"
	TargetUnSubscribeOrders   = "UnSubscribeOrders"
	TargetExtendSubscriptions = "ExtendSubscriptions"
)

// QuoteLevel is the depth of quote data requested for an instrument.
// Book includes TopOfBook, TopOfBook includes Trades.
type QuoteLevel string

const (
	LevelTrades    QuoteLevel = "Trades"
	LevelTopOfBook QuoteLevel = "TopOfBook"
	LevelBook      QuoteLevel = "Book"
)

// QuoteLevels lists the levels from lowest to highest.
func QuoteLevels() []QuoteLevel {
	return []QuoteLevel{LevelTrades, LevelTopOfBook, LevelBook}
}

// ParseQuoteLevel parses a level name, ignoring case.
func ParseQuoteLevel(s string) (QuoteLevel, error) {
	for _, lvl := range QuoteLevels() {
		if strings.EqualFold(s, string(lvl)) {
			return lvl, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

func (l QuoteLevel) index() (ledger.Level, error) {
	for i, lvl := range QuoteLevels() {
		if l == lvl {
			return ledger.Level(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, string(l))
}

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrorCode classifies errors passed to an ErrorHandler.
type ErrorCode string

const (
	CodeDisconnected  ErrorCode = "disconnected"   // connection lost without Stop
	CodeConnectFailed ErrorCode = "connect_failed" // Start could not open the connection
	CodeRequestFailed ErrorCode = "request_failed" // hub invocation failed
	CodeRejected      ErrorCode = "rejected"       // hub answered isSucceeded=false
)

// ErrorHandler receives errors the session cannot return to a caller.
// It is called synchronously and must not block.
type ErrorHandler func(code ErrorCode, description string)

// Subscription is the account context of the session. It is polled on
// every request so token and account changes apply immediately.
type Subscription struct {
	ActiveAccountNumber string
	AccessToken         string
}

// Connection is the hub link used by a Session. *hub.Client implements it.
type Connection interface {
	Start(ctx context.Context) error
	Close() error
	Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error)
	On(target string, h hub.PushHandler)
	OnClose(fn func(error))
}

// SubscriptionResponse is the result of the Subscribe*/UnSubscribe* methods.
type SubscriptionResponse struct {
	IsSucceeded bool `json:"isSucceeded"`
	SubCount    int  `json:"subcount"`
}

// Config configures a Session.
type Config struct {
	Hub          hub.Config    // Used by the default connection factory
	Router       router.Config // Push event queue
	ExtendWindow time.Duration // Lifetime the server grants on ExtendSubscriptions
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Hub:          hub.DefaultConfig(),
		Router:       router.DefaultConfig(),
		ExtendWindow: time.Hour,
	}
}
