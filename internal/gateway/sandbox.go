package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrIntentNotFound = errors.New("intent not found")

// SandboxConfig tunes the in-process provider used for local runs and tests.
type SandboxConfig struct {
	// Prefix is prepended to generated intent ids.
	Prefix string
	// NextActionBase is joined with the intent id to form the client action.
	NextActionBase string
	// CaptureRequired makes approval a separate step from payment, as with
	// card sessions and redirect wallets. Push payments settle on approval.
	CaptureRequired bool
	// ApproveAfterPolls approves an open intent after that many Status or
	// Capture calls, simulating the payer. Zero leaves approval manual.
	ApproveAfterPolls int
}

type sandboxIntent struct {
	amountMinor   int64
	currency      string
	state         ProviderState
	reason        string
	capturedMinor *int64
	polls         int
}

// Sandbox is an in-memory Provider.
type Sandbox struct {
	mu        sync.Mutex
	cfg       SandboxConfig
	intents   map[string]*sandboxIntent
	createErr error
	statusErr error
}

func NewSandbox(cfg SandboxConfig) *Sandbox {
	return &Sandbox{cfg: cfg, intents: make(map[string]*sandboxIntent)}
}

func (s *Sandbox) Create(_ context.Context, amountMinor int64, currency string) (ProviderIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return ProviderIntent{}, s.createErr
	}
	if amountMinor <= 0 {
		return ProviderIntent{}, fmt.Errorf("amount must be positive, got %d", amountMinor)
	}

	id := s.cfg.Prefix + uuid.NewString()
	s.intents[id] = &sandboxIntent{amountMinor: amountMinor, currency: currency, state: ProviderOpen}
	return ProviderIntent{ID: id, NextAction: s.cfg.NextActionBase + id}, nil
}

func (s *Sandbox) Status(_ context.Context, id string) (ProviderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statusErr != nil {
		return ProviderStatus{}, s.statusErr
	}
	in, ok := s.intents[id]
	if !ok {
		return ProviderStatus{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	s.poll(in)
	return s.status(in), nil
}

func (s *Sandbox) Capture(_ context.Context, id string) (ProviderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statusErr != nil {
		return ProviderStatus{}, s.statusErr
	}
	in, ok := s.intents[id]
	if !ok {
		return ProviderStatus{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	s.poll(in)
	if in.state == ProviderApproved {
		in.state = ProviderPaid
	}
	return s.status(in), nil
}

// Approve simulates the payer completing payment.
func (s *Sandbox) Approve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	s.approve(in)
	return nil
}

func (s *Sandbox) Decline(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	in.state = ProviderDeclined
	in.reason = reason
	return nil
}

// OverrideCapturedAmount makes the provider report a different captured amount.
func (s *Sandbox) OverrideCapturedAmount(id string, amountMinor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	in.capturedMinor = &amountMinor
	return nil
}

// FailCreates makes Create return err until called again with nil.
func (s *Sandbox) FailCreates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// FailStatus makes Status and Capture return err until called again with nil.
func (s *Sandbox) FailStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusErr = err
}

func (s *Sandbox) poll(in *sandboxIntent) {
	in.polls++
	if in.state == ProviderOpen && s.cfg.ApproveAfterPolls > 0 && in.polls >= s.cfg.ApproveAfterPolls {
		s.approve(in)
	}
}

func (s *Sandbox) approve(in *sandboxIntent) {
	if in.state != ProviderOpen {
		return
	}
	if s.cfg.CaptureRequired {
		in.state = ProviderApproved
		return
	}
	in.state = ProviderPaid
}

func (s *Sandbox) status(in *sandboxIntent) ProviderStatus {
	amount := in.amountMinor
	if in.capturedMinor != nil {
		amount = *in.capturedMinor
	}
	return ProviderStatus{State: in.state, AmountMinor: amount, Reason: in.reason}
}
