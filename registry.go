// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/fhevm/types"
)

// HandleState tracks where a handle is in its lifecycle.
type HandleState uint8

const (
	StatePending HandleState = iota
	StateConfirmed
	StateRevoked
)

func (s HandleState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// HandleRecord is a snapshot of a registry entry. Records handed out by the
// registry are copies; mutating them has no effect on the registry.
type HandleRecord struct {
	Handle     types.Handle
	Type       types.FheType
	State      HandleState
	Ciphertext []byte
	InputProof []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *HandleRecord) clone() HandleRecord {
	c := *r
	c.Ciphertext = bytes.Clone(r.Ciphertext)
	c.InputProof = bytes.Clone(r.InputProof)
	return c
}

// Registry is the single source of truth mapping handles to their declared type
// and confirmation state.
type Registry struct {
	log     log.Logger
	clock   Clock
	entropy io.Reader

	lock    sync.RWMutex
	handles map[types.Handle]*HandleRecord
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock used for record timestamps.
func WithRegistryClock(c Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithEntropy sets the randomness source for handle ids.
func WithEntropy(reader io.Reader) RegistryOption {
	return func(r *Registry) { r.entropy = reader }
}

// NewRegistry returns an empty registry.
func NewRegistry(logger log.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:     logger,
		clock:   SystemClock{},
		entropy: rand.Reader,
		handles: make(map[types.Handle]*HandleRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// maxHandleDraws bounds how often newHandleID redraws an id that falls in the
// uint64 range.
const maxHandleDraws = 16

// newHandleID draws a random id above the uint64 range. The second to last byte
// carries the declared type, as on-chain handles do.
func (r *Registry) newHandleID(t types.FheType) (types.Handle, error) {
	var h types.Handle
	for i := 0; i < maxHandleDraws; i++ {
		if _, err := io.ReadFull(r.entropy, h[:]); err != nil {
			return types.Handle{}, fmt.Errorf("failed to read entropy: %w", err)
		}
		h[types.HandleLen-2] = byte(t)
		h[types.HandleLen-1] = 0
		if h.IsEncrypted() {
			return h, nil
		}
	}
	return types.Handle{}, fmt.Errorf("%w: %d draws fell in the uint64 range", ErrWeakEntropy, maxHandleDraws)
}

// Register allocates a new Pending handle of the given type.
func (r *Registry) Register(t types.FheType) (types.Handle, error) {
	if !t.Valid() {
		return types.Handle{}, fmt.Errorf("%w: %d", types.ErrUnknownType, uint8(t))
	}
	h, err := r.newHandleID(t)
	if err != nil {
		return types.Handle{}, err
	}

	now := r.clock.Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exists := r.handles[h]; exists {
		r.log.Error("handle collision", log.Stringer("handle", h))
		return types.Handle{}, fmt.Errorf("%w: %s", ErrHandleCollision, h)
	}
	r.handles[h] = &HandleRecord{
		Handle:    h,
		Type:      t,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.log.Debug("registered handle",
		log.Stringer("handle", h),
		log.Stringer("type", t),
	)
	return h, nil
}

// Import adopts a handle that was confirmed elsewhere, typically read back from a
// contract, so that it can be decrypted. Importing a known handle fails.
func (r *Registry) Import(h types.Handle, t types.FheType, ciphertext []byte) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", types.ErrUnknownType, uint8(t))
	}
	if h.IsZero() {
		return fmt.Errorf("%w: zero handle", types.ErrInvalidHandle)
	}

	now := r.clock.Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exists := r.handles[h]; exists {
		return fmt.Errorf("%w: %s already registered", ErrHandleCollision, h)
	}
	r.handles[h] = &HandleRecord{
		Handle:     h,
		Type:       t,
		State:      StateConfirmed,
		Ciphertext: bytes.Clone(ciphertext),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

// Confirm moves a Pending handle to Confirmed, attaching its ciphertext and input
// proof. Only one of any number of concurrent confirms can succeed.
func (r *Registry) Confirm(h types.Handle, ciphertext, inputProof []byte) error {
	if len(ciphertext) == 0 {
		return fmt.Errorf("%w: empty ciphertext", ErrInvalidCiphertext)
	}
	if len(inputProof) == 0 {
		return fmt.Errorf("%w: empty input proof", ErrInvalidCiphertext)
	}

	now := r.clock.Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.handles[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	if record.State != StatePending {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidStateTransition, h, record.State, StatePending)
	}
	record.State = StateConfirmed
	record.Ciphertext = bytes.Clone(ciphertext)
	record.InputProof = bytes.Clone(inputProof)
	record.UpdatedAt = now
	return nil
}

// Revoke moves a handle to Revoked from any state. Revoking twice is a no-op.
func (r *Registry) Revoke(h types.Handle) error {
	now := r.clock.Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.handles[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	if record.State == StateRevoked {
		return nil
	}
	r.log.Debug("revoking handle",
		log.Stringer("handle", h),
		log.Stringer("from", record.State),
	)
	record.State = StateRevoked
	record.UpdatedAt = now
	return nil
}

// Lookup returns the declared type and current state of h.
func (r *Registry) Lookup(h types.Handle) (types.FheType, HandleState, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	record, ok := r.handles[h]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	return record.Type, record.State, nil
}

// Get returns a copy of the full record for h.
func (r *Registry) Get(h types.Handle) (HandleRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	record, ok := r.handles[h]
	if !ok {
		return HandleRecord{}, fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	return record.clone(), nil
}

// Len returns the number of tracked handles in any state.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.handles)
}
