package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestExecutor(rec *sleepRecorder) *Executor {
	return NewWithConfig(Config{
		MaxAttempts:          3,
		BackoffUnit:          time.Second,
		RateLimitBackoffUnit: time.Second,
	}, zap.NewNop(), WithSleep(rec.sleep))
}

func TestRateLimitedThreeTimesWaitsOneTwoFour(t *testing.T) {
	rec := &sleepRecorder{}
	exec := newTestExecutor(rec)

	calls := 0
	out := Execute(context.Background(), exec, "search", func(context.Context) (string, error) {
		calls++
		return "", &StatusError{StatusCode: http.StatusTooManyRequests}
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.waits)
	assert.Equal(t, rec.waits, out.Waits)
	assert.False(t, out.OK())
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, KindCallFailed, out.Kind)
	assert.Equal(t, KindRateLimited, out.LastKind)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, out.StatusCode)
}

func TestTerminalFailureAbortsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	exec := newTestExecutor(rec)

	calls := 0
	out := Execute(context.Background(), exec, "llm", func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: http.StatusUnauthorized}
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
	assert.Equal(t, KindAuthOrConfig, out.Kind)
	assert.Equal(t, 1, out.Attempts)

	var callErr *CallError
	require.ErrorAs(t, out.AsError("llm"), &callErr)
	assert.Equal(t, KindAuthOrConfig, callErr.Kind)
	assert.Equal(t, "auth_or_config", callErr.ErrorType())
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewWithConfig(Config{
		MaxAttempts:          3,
		BackoffUnit:          500 * time.Millisecond,
		RateLimitBackoffUnit: time.Second,
	}, zap.NewNop(), WithSleep(rec.sleep))

	calls := 0
	out := Execute(context.Background(), exec, "fetch", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", context.DeadlineExceeded
		}
		if calls == 2 {
			return "", &StatusError{StatusCode: http.StatusTooManyRequests}
		}
		return "body", nil
	})

	require.True(t, out.OK())
	assert.Equal(t, "body", out.Value)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 2 * time.Second}, rec.waits)
	assert.NoError(t, out.AsError("fetch"))
}

func TestCancellationDuringWaitFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := NewWithConfig(Config{MaxAttempts: 3}, zap.NewNop(), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	out := Execute(ctx, exec, "search", func(context.Context) (string, error) {
		calls++
		return "", errors.New("request timed out")
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := NewWithConfig(Config{}, zap.NewNop())

	out := Execute(ctx, exec, "search", func(context.Context) (string, error) {
		t.Fatal("call must not run")
		return "", nil
	})
	assert.Equal(t, 0, out.Attempts)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"429", &StatusError{StatusCode: 429}, KindRateLimited},
		{"503", fmt.Errorf("search: %w", &StatusError{StatusCode: 503}), KindTransientNetwork},
		{"408", &StatusError{StatusCode: 408}, KindTransientNetwork},
		{"401", &StatusError{StatusCode: 401}, KindAuthOrConfig},
		{"403", &StatusError{StatusCode: 403}, KindAuthOrConfig},
		{"404", &StatusError{StatusCode: 404}, KindCallFailed},
		{"400 quota body", &StatusError{StatusCode: 400, Body: "daily quota exceeded"}, KindRateLimited},
		{"missing key", fmt.Errorf("llm: %w", ErrMissingCredential), KindAuthOrConfig},
		{"deadline", context.DeadlineExceeded, KindTransientNetwork},
		{"canceled", context.Canceled, KindCallFailed},
		{"net timeout", timeoutErr{}, KindTransientNetwork},
		{"rate message", errors.New("Rate limit reached for requests"), KindRateLimited},
		{"timeout message", errors.New("upstream timed out"), KindTransientNetwork},
		{"auth message", errors.New("Incorrect API key provided"), KindAuthOrConfig},
		{"openai api 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, KindRateLimited},
		{"openai request 500", &openai.RequestError{HTTPStatusCode: 500, Err: errors.New("boom")}, KindTransientNetwork},
		{"other", errors.New("boom"), KindCallFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestBackoffUsesLongerUnitForRateLimits(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff(KindTransientNetwork, 0))
	assert.Equal(t, 2*time.Second, cfg.Backoff(KindTransientNetwork, 2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(KindRateLimited, 2))
}
