package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type Option func(*Simulator)

// WithAutoConfirm confirms every lock the given delay after it was opened, if it has not
// expired in the meantime.
func WithAutoConfirm(delay time.Duration) Option {
	return func(s *Simulator) {
		s.autoConfirm = delay
	}
}

// WithAutoRefund completes refunds as soon as they are requested.
func WithAutoRefund() Option {
	return func(s *Simulator) {
		s.autoRefund = true
	}
}

type simulatedLock struct {
	ref             domain.LockRef
	openedAt        time.Time
	status          ports.LockStatus
	refundRequested bool
}

// Simulator is an in-memory settlement. Locks stay pending until confirmed by Confirm or by
// the auto-confirm delay, and expire at their deadline.
type Simulator struct {
	lock        sync.Mutex
	locks       map[string]*simulatedLock
	count       uint64
	autoConfirm time.Duration
	autoRefund  bool
	now         func() time.Time
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		locks: make(map[string]*simulatedLock),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) OpenLock(_ context.Context, req ports.LockRequest) (domain.LockRef, error) {
	if req.ReserveUnits == nil || req.ReserveUnits.Sign() <= 0 || !req.ReserveUnits.IsUint64() {
		return domain.LockRef{}, fmt.Errorf("invalid lock amount %v", req.ReserveUnits)
	}
	if len(req.ClaimAddress) <= 0 {
		return domain.LockRef{}, fmt.Errorf("missing claim address")
	}
	if req.Timeout <= 0 {
		return domain.LockRef{}, fmt.Errorf("invalid lock timeout %s", req.Timeout)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.count++
	id := fmt.Sprintf("sim-lock-%d", s.count)
	script := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", id, req.ClaimAddress, req.PaymentHash)))
	now := s.now()

	ref := domain.LockRef{
		Id:          id,
		Address:     fmt.Sprintf("sim:%x", script[:8]),
		Script:      hex.EncodeToString(script[:]),
		PaymentHash: req.PaymentHash,
		Amount:      req.ReserveUnits.Uint64(),
		ExpiresAt:   now.Add(req.Timeout).Unix(),
	}
	s.locks[id] = &simulatedLock{
		ref:      ref,
		openedAt: now,
		status:   ports.LockStatusPending,
	}

	log.Debugf("simulator: opened lock %s of %d sats", id, ref.Amount)
	return ref, nil
}

func (s *Simulator) ObserveConfirmation(
	_ context.Context, ref domain.LockRef,
) (ports.LockStatus, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	l, ok := s.locks[ref.Id]
	if !ok {
		return "", fmt.Errorf("unknown lock %s", ref.Id)
	}
	s.refresh(l)
	return l.status, nil
}

// Refund requests the refund of an expired lock.
func (s *Simulator) Refund(_ context.Context, ref domain.LockRef) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	l, ok := s.locks[ref.Id]
	if !ok {
		return fmt.Errorf("unknown lock %s", ref.Id)
	}
	s.refresh(l)

	switch l.status {
	case ports.LockStatusRefunded:
		return nil
	case ports.LockStatusExpired:
	default:
		return fmt.Errorf("lock %s is %s, cannot refund", ref.Id, l.status)
	}

	l.refundRequested = true
	if s.autoRefund {
		l.status = ports.LockStatusRefunded
	}
	log.Debugf("simulator: refund requested for lock %s", ref.Id)
	return nil
}

// Confirm marks the claim of the given lock as confirmed.
func (s *Simulator) Confirm(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	l, ok := s.locks[id]
	if !ok {
		return fmt.Errorf("unknown lock %s", id)
	}
	s.refresh(l)
	if l.status != ports.LockStatusPending {
		return fmt.Errorf("lock %s is %s, cannot confirm", id, l.status)
	}
	l.status = ports.LockStatusConfirmed
	return nil
}

// CompleteRefund marks a requested refund as confirmed.
func (s *Simulator) CompleteRefund(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	l, ok := s.locks[id]
	if !ok {
		return fmt.Errorf("unknown lock %s", id)
	}
	if !l.refundRequested {
		return fmt.Errorf("no refund requested for lock %s", id)
	}
	l.status = ports.LockStatusRefunded
	return nil
}

func (s *Simulator) RefundRequested(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	l, ok := s.locks[id]
	return ok && l.refundRequested
}

// must be called with the lock held
func (s *Simulator) refresh(l *simulatedLock) {
	if l.status != ports.LockStatusPending {
		return
	}
	now := s.now()
	if s.autoConfirm > 0 && !now.Before(l.openedAt.Add(s.autoConfirm)) &&
		now.Before(time.Unix(l.ref.ExpiresAt, 0)) {
		l.status = ports.LockStatusConfirmed
		return
	}
	if !now.Before(time.Unix(l.ref.ExpiresAt, 0)) {
		l.status = ports.LockStatusExpired
	}
}
