package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

type settings struct {
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

func defaultSettings() settings {
	return settings{
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
}

// Option configures a Gate, Ledger or Manager.
type Option func(*settings)

// WithTimeout bounds every backend invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// withUserID returns a copy of params with user_id set when absent.
func withUserID(params map[string]any, userID string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if _, ok := out["user_id"]; !ok {
		out["user_id"] = userID
	}
	return out
}

// invoke calls fn under the configured timeout. Panics in the backend are
// reported as errors.
func (s settings) invoke(ctx context.Context, key ToolKey, fn ToolFunc, userID string, params map[string]any) (result any, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &BackendError{Key: key, Err: fmt.Errorf("panic: %v", r)}
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		s.recorder.RecordBackendInvocation(ctx, key.Integration, key.Tool, status, time.Since(start))
	}()

	result, err = fn(ctx, Call{UserID: userID, Params: withUserID(params, userID)})
	if err != nil {
		return nil, &BackendError{Key: key, Err: err}
	}
	return result, nil
}

// normalizeResult turns a backend return value into a JSON object.
// Values that are not objects are wrapped as {"result": v}.
func normalizeResult(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	if v == nil {
		return map[string]any{"result": nil}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if m, ok := decoded.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"result": decoded}, nil
}
