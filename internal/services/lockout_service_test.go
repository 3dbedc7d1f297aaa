package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icanedev/smartcane-api/internal/config"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		Window:           30 * time.Minute,
		FreeAttempts:     3,
		Schedule:         []time.Duration{60 * time.Second, 180 * time.Second, 600 * time.Second, 1800 * time.Second},
		AttemptRetention: 24 * time.Hour,
	}
}

func strPtr(s string) *string {
	return &s
}

func ledgerWithAttempts(count int, lastAgo time.Duration) *MockLoginAttemptLedger {
	last := time.Now().UTC().Add(-lastAgo)
	return &MockLoginAttemptLedger{
		RecentAttemptsFunc: func(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
			return count, &last, nil
		},
	}
}

func TestLockoutEvaluate_UnderFreeAllowance(t *testing.T) {
	svc := NewLockoutService(ledgerWithAttempts(2, time.Minute), testLockoutConfig(), newTestLogger())

	decision, err := svc.Evaluate(context.Background(), strPtr("maria"), strPtr("10.0.0.1"))

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.RemainingAttempts)
	assert.Zero(t, decision.RetryAfter)
}

func TestLockoutEvaluate_AtFreeAllowance(t *testing.T) {
	svc := NewLockoutService(ledgerWithAttempts(3, time.Minute), testLockoutConfig(), newTestLogger())

	decision, err := svc.Evaluate(context.Background(), strPtr("maria"), strPtr("10.0.0.1"))

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Zero(t, decision.RemainingAttempts)
}

func TestLockoutEvaluate_NoAttempts(t *testing.T) {
	ledger := &MockLoginAttemptLedger{
		RecentAttemptsFunc: func(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
			return 0, nil, nil
		},
	}
	svc := NewLockoutService(ledger, testLockoutConfig(), newTestLogger())

	decision, err := svc.Evaluate(context.Background(), strPtr("maria"), nil)

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 3, decision.RemainingAttempts)
}

func TestLockoutEvaluate_FirstTierBlock(t *testing.T) {
	// 4th failure 10s ago puts the identity in the 60s tier
	svc := NewLockoutService(ledgerWithAttempts(4, 10*time.Second), testLockoutConfig(), newTestLogger())

	decision, err := svc.Evaluate(context.Background(), strPtr("maria"), strPtr("10.0.0.1"))

	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.InDelta(t, 50, decision.RetryAfter, 2)
}

func TestLockoutEvaluate_EscalatesThroughSchedule(t *testing.T) {
	cases := []struct {
		name            string
		attempts        int
		expectedLockout time.Duration
	}{
		{"first tier", 4, 60 * time.Second},
		{"second tier", 5, 180 * time.Second},
		{"third tier", 6, 600 * time.Second},
		{"final tier", 7, 1800 * time.Second},
		{"plateaus at final tier", 20, 1800 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewLockoutService(ledgerWithAttempts(tc.attempts, time.Second), testLockoutConfig(), newTestLogger())

			decision, err := svc.Evaluate(context.Background(), strPtr("maria"), strPtr("10.0.0.1"))

			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.InDelta(t, tc.expectedLockout.Seconds()-1, float64(decision.RetryAfter), 2)
		})
	}
}

func TestLockoutEvaluate_LockoutElapsed(t *testing.T) {
	// 4 failures but the most recent was beyond the 60s tier
	svc := NewLockoutService(ledgerWithAttempts(4, 90*time.Second), testLockoutConfig(), newTestLogger())

	decision, err := svc.Evaluate(context.Background(), strPtr("maria"), strPtr("10.0.0.1"))

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Zero(t, decision.RetryAfter)
	assert.Zero(t, decision.RemainingAttempts)
}

func TestLockoutEvaluate_WindowBoundsQuery(t *testing.T) {
	var gotSince time.Time
	ledger := &MockLoginAttemptLedger{
		RecentAttemptsFunc: func(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
			gotSince = since
			return 0, nil, nil
		},
	}
	svc := NewLockoutService(ledger, testLockoutConfig(), newTestLogger())

	_, err := svc.Evaluate(context.Background(), strPtr("maria"), nil)

	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(-30*time.Minute), gotSince, 2*time.Second)
}

func TestLockoutEvaluate_LedgerError(t *testing.T) {
	ledger := &MockLoginAttemptLedger{
		RecentAttemptsFunc: func(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
			return 0, nil, errors.New("connection reset")
		},
	}
	svc := NewLockoutService(ledger, testLockoutConfig(), newTestLogger())

	_, err := svc.Evaluate(context.Background(), strPtr("maria"), nil)

	assert.Error(t, err)
}

func TestLockoutRecordFailure_PassesIdentity(t *testing.T) {
	var recorded *models.LoginAttempt
	ledger := &MockLoginAttemptLedger{
		RecordFunc: func(ctx context.Context, attempt *models.LoginAttempt) error {
			recorded = attempt
			return nil
		},
	}
	svc := NewLockoutService(ledger, testLockoutConfig(), newTestLogger())

	err := svc.RecordFailure(context.Background(), strPtr("maria"), nil)

	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, "maria", *recorded.Username)
	assert.Nil(t, recorded.IPAddress)
}

func TestLockoutClearAttempts(t *testing.T) {
	purged := false
	ledger := &MockLoginAttemptLedger{
		PurgeFunc: func(ctx context.Context, username, ipAddress *string) error {
			purged = true
			return nil
		},
	}
	svc := NewLockoutService(ledger, testLockoutConfig(), newTestLogger())

	require.NoError(t, svc.ClearAttempts(context.Background(), strPtr("maria"), strPtr("10.0.0.1")))
	assert.True(t, purged)
}

func TestLockoutPruneStale_UsesRetentionCutoff(t *testing.T) {
	var gotCutoff time.Time
	ledger := &MockLoginAttemptLedger{
		DeleteOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 7, nil
		},
	}
	svc := NewLockoutService(ledger, testLockoutConfig(), newTestLogger())

	deleted, err := svc.PruneStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), gotCutoff, 2*time.Second)
}
