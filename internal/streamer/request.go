package streamer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rickgao/broker-streamer/internal/metrics"
)

// requester sends subscription requests and reports their failures.
type requester struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	report  ErrorHandler
}

// invoke calls target and decodes the SubscriptionResponse. Transport errors
// are reported as CodeRequestFailed, isSucceeded=false as CodeRejected.
// subject names what the request was about in the reported description.
func (r requester) invoke(ctx context.Context, conn Connection, target, subject string, args ...any) (SubscriptionResponse, error) {
	raw, err := conn.Invoke(ctx, target, args...)
	if err != nil {
		r.metrics.IncRequestFailure(target)
		r.fail(CodeRequestFailed, fmt.Sprintf("%s failed for %s: %v", target, subject, err), err)
		return SubscriptionResponse{}, fmt.Errorf("%s %s: %w", target, subject, err)
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		r.metrics.IncRequestFailure(target)
		r.fail(CodeRequestFailed, fmt.Sprintf("%s returned an unreadable response for %s: %v", target, subject, err), err)
		return SubscriptionResponse{}, fmt.Errorf("%s %s: %w", target, subject, err)
	}
	if !resp.IsSucceeded {
		r.metrics.IncRequestFailure(target)
		r.fail(CodeRejected, fmt.Sprintf("%s was rejected for %s. Is the account number valid?", target, subject), ErrRejected)
		return resp, fmt.Errorf("%s %s: %w", target, subject, ErrRejected)
	}

	return resp, nil
}

// release calls an unsubscribe target. Only a transport error or an explicit
// isSucceeded=false counts as a failure; an empty or unreadable result is
// taken as done.
func (r requester) release(ctx context.Context, conn Connection, target, subject string, args ...any) error {
	raw, err := conn.Invoke(ctx, target, args...)
	if err != nil {
		r.metrics.IncRequestFailure(target)
		r.fail(CodeRequestFailed, fmt.Sprintf("%s failed for %s: %v", target, subject, err), err)
		return fmt.Errorf("%s %s: %w", target, subject, err)
	}

	var resp struct {
		IsSucceeded *bool `json:"isSucceeded"`
	}
	if json.Unmarshal(raw, &resp) != nil || resp.IsSucceeded == nil || *resp.IsSucceeded {
		return nil
	}

	r.metrics.IncRequestFailure(target)
	r.fail(CodeRejected, fmt.Sprintf("%s was rejected for %s", target, subject), ErrRejected)
	return fmt.Errorf("%s %s: %w", target, subject, ErrRejected)
}

func (r requester) fail(code ErrorCode, description string, err error) {
	r.logger.Error("streamer request failed", "code", code, "error", err)
	if r.report != nil {
		r.report(code, description)
	}
}

func decodeResponse(raw json.RawMessage) (SubscriptionResponse, error) {
	var resp SubscriptionResponse
	if len(raw) == 0 || string(raw) == "null" {
		return resp, ErrEmptyResult
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("decode subscription response: %w", err)
	}
	return resp, nil
}
