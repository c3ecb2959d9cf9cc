package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedAdapter returns outcomes in order, repeating the last one.
type scriptedAdapter struct {
	outcomes []Outcome
	errs     []error
	policy   PollPolicy
	calls    atomic.Int32
}

func (s *scriptedAdapter) Kind() Kind                       { return KindPushQR }
func (s *scriptedAdapter) Method() domain.TransactionMethod { return domain.MethodQR }
func (s *scriptedAdapter) PollPolicy() PollPolicy           { return s.policy }

func (s *scriptedAdapter) CreateIntent(context.Context, decimal.Decimal, string) (IntentRef, error) {
	return IntentRef{ID: "intent-1", Kind: KindPushQR}, nil
}

func (s *scriptedAdapter) Resolve(context.Context, IntentRef) (Outcome, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return Outcome{}, s.errs[i]
	}
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i], nil
}

func fastPolicy(attempts int) PollPolicy {
	return PollPolicy{Interval: time.Millisecond, MaxAttempts: attempts, MaxDuration: time.Second}
}

func TestAwait_SettlesAfterPending(t *testing.T) {
	a := &scriptedAdapter{
		outcomes: []Outcome{Pending(), Pending(), Settled(decimal.RequireFromString("14.60"))},
		policy:   fastPolicy(5),
	}

	out, err := Await(context.Background(), a, IntentRef{ID: "intent-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, out.Status)
	assert.True(t, out.CapturedAmount.Equal(decimal.RequireFromString("14.60")))
	assert.Equal(t, int32(3), a.calls.Load())
}

func TestAwait_BoundedAttempts(t *testing.T) {
	a := &scriptedAdapter{outcomes: []Outcome{Pending()}, policy: fastPolicy(4)}

	_, err := Await(context.Background(), a, IntentRef{ID: "intent-1"})
	assert.ErrorIs(t, err, ErrGatewayTimeout)
	assert.Equal(t, int32(4), a.calls.Load())
}

func TestAwait_TransportErrorsCountAsAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	a := &scriptedAdapter{
		outcomes: []Outcome{Pending(), Failed("declined")},
		errs:     []error{boom},
		policy:   fastPolicy(3),
	}

	out, err := Await(context.Background(), a, IntentRef{ID: "intent-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "declined", out.Reason)
}

func TestAwait_CallerCancellation(t *testing.T) {
	a := &scriptedAdapter{
		outcomes: []Outcome{Pending()},
		policy:   PollPolicy{Interval: time.Hour, MaxAttempts: 10},
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := Await(ctx, a, IntentRef{ID: "intent-1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrGatewayTimeout)
}

func TestAwait_MaxDuration(t *testing.T) {
	a := &scriptedAdapter{
		outcomes: []Outcome{Pending()},
		policy:   PollPolicy{Interval: 5 * time.Millisecond, MaxAttempts: 1000, MaxDuration: 30 * time.Millisecond},
	}

	_, err := Await(context.Background(), a, IntentRef{ID: "intent-1"})
	assert.ErrorIs(t, err, ErrGatewayTimeout)
}

func TestAwait_CallerDeadlineIsNotGatewayTimeout(t *testing.T) {
	a := &scriptedAdapter{
		outcomes: []Outcome{Pending()},
		policy:   PollPolicy{Interval: 5 * time.Millisecond, MaxAttempts: 1000, MaxDuration: time.Minute},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := Await(ctx, a, IntentRef{ID: "intent-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrGatewayTimeout)
}

func TestCardSession_CaptureAfterApproval(t *testing.T) {
	sb := NewSandbox(SandboxConfig{Prefix: "cs_", CaptureRequired: true})
	card := NewCardSession(sb)
	ctx := context.Background()

	ref, err := card.CreateIntent(ctx, decimal.RequireFromString("14.60"), "SGD")
	require.NoError(t, err)
	assert.Equal(t, KindCardSession, ref.Kind)

	out, err := card.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)

	require.NoError(t, sb.Approve(ref.ID))
	out, err = card.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, out.Status)
	assert.True(t, out.CapturedAmount.Equal(decimal.RequireFromString("14.60")))
}

func TestPushQR_PollsUntilPaid(t *testing.T) {
	sb := NewSandbox(SandboxConfig{Prefix: "qr_", ApproveAfterPolls: 3})
	qr := NewPushQR(sb, fastPolicy(10))
	ctx := context.Background()

	ref, err := qr.CreateIntent(ctx, decimal.RequireFromString("3.00"), "SGD")
	require.NoError(t, err)

	out, err := Await(ctx, qr, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, out.Status)
}

func TestRedirectWallet_DeclinedOnReturn(t *testing.T) {
	sb := NewSandbox(SandboxConfig{Prefix: "pp_", CaptureRequired: true})
	rw := NewRedirectWallet(sb)
	ctx := context.Background()

	ref, err := rw.CreateIntent(ctx, decimal.RequireFromString("9.99"), "SGD")
	require.NoError(t, err)
	require.NoError(t, sb.Decline(ref.ID, "payer cancelled"))

	out, err := Await(ctx, rw, ref)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "payer cancelled", out.Reason)
}

func TestCreateIntent_ProviderDown(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	sb.FailCreates(errors.New("503"))
	card := NewCardSession(sb)

	_, err := card.CreateIntent(context.Background(), decimal.NewFromInt(1), "SGD")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestWithBreaker_OpensAfterFailures(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	sb.FailCreates(errors.New("503"))
	a := WithBreaker(NewCardSession(sb), BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute, HalfOpenReqs: 1}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := a.CreateIntent(ctx, decimal.NewFromInt(1), "SGD")
		require.Error(t, err)
	}

	sb.FailCreates(nil)
	_, err := a.CreateIntent(ctx, decimal.NewFromInt(1), "SGD")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, KindCardSession, a.Kind())
}

func TestRegistry(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	reg := NewRegistry(NewCardSession(sb), NewRedirectWallet(sb))

	a, err := reg.Get(KindRedirectWallet)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodPayPal, a.Method())

	_, err = reg.Get(KindPushQR)
	assert.ErrorIs(t, err, ErrUnknownGateway)

	_, err = ParseKind("bitcoin")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}
