package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleep records requested delays without sleeping.
type fakeSleep struct {
	delays []time.Duration
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func TestExecuteTransientRetriesWithBackoff(t *testing.T) {
	fs := &fakeSleep{}
	p := Policy{MaxRetries: 3, InitialDelay: 2 * time.Second, sleep: fs.sleep}

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return MarkTransient(errors.New("connection dropped"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, fs.delays)
}

func TestExecuteAuthFailsImmediately(t *testing.T) {
	fs := &fakeSleep{}
	p := Policy{MaxRetries: 3, InitialDelay: 2 * time.Second, sleep: fs.sleep}

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return MarkAuth(errors.New("access denied"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)
	assert.Equal(t, ClassAuth, Classify(err))
}

func TestExecuteUnknownNotRetried(t *testing.T) {
	fs := &fakeSleep{}
	p := Policy{MaxRetries: 5, InitialDelay: time.Second, sleep: fs.sleep}

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return errors.New("something odd")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ClassUnknown, Classify(err))
}

func TestExecuteExhaustedSurfacesLastError(t *testing.T) {
	fs := &fakeSleep{}
	p := Policy{MaxRetries: 3, InitialDelay: time.Second, sleep: fs.sleep}

	boom := MarkTransient(errors.New("flaky link"))
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fs.delays)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestExecuteContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxRetries: 3, InitialDelay: time.Hour}
	err := p.Execute(ctx, func() error {
		return MarkTransient(errors.New("down"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteOnRetryCallback(t *testing.T) {
	fs := &fakeSleep{}
	var attempts []int
	p := Policy{
		MaxRetries:   2,
		InitialDelay: time.Second,
		sleep:        fs.sleep,
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			attempts = append(attempts, attempt)
		},
	}

	_ = p.Execute(context.Background(), func() error {
		return MarkTransient(errors.New("down"))
	})
	assert.Equal(t, []int{1}, attempts)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassUnknown},
		{"marked transient", MarkTransient(errors.New("x")), ClassTransient},
		{"marked auth", MarkAuth(errors.New("x")), ClassAuth},
		{"wrapped marked", errors.Join(errors.New("outer"), MarkAuth(errors.New("x"))), ClassAuth},
		{"deadline", context.DeadlineExceeded, ClassTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ClassTransient},
		{"conn refused", syscall.ECONNREFUSED, ClassTransient},
		{"plain", errors.New("x"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRemediationNonEmpty(t *testing.T) {
	for _, c := range []Class{ClassUnknown, ClassTransient, ClassAuth, ClassTimeout} {
		assert.NotEmpty(t, c.Remediation())
		assert.NotEmpty(t, c.String())
	}
}
