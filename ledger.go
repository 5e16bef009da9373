// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
)

// PermissionGrant authorizes a user's decryptions through one contract until
// ExpiresAt. Timestamps are unix seconds.
type PermissionGrant struct {
	Contract  common.Address
	User      common.Address
	Signature []byte
	IssuedAt  uint64
	ExpiresAt uint64
}

// Usable reports whether the grant is valid at unix time now.
func (g *PermissionGrant) Usable(now uint64) bool {
	return now < g.ExpiresAt
}

type grantKey struct {
	contract common.Address
	user     common.Address
}

// Ledger records which (contract, user) pairs hold a signed, unexpired permit.
type Ledger struct {
	log   log.Logger
	clock Clock

	lock   sync.RWMutex
	grants map[grantKey]*PermissionGrant
	// contracts granted per user, so RevokeAll does not scan every grant
	byUser map[common.Address]set.Set[common.Address]
}

// NewLedger returns an empty ledger reading time from clock.
func NewLedger(logger log.Logger, clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{
		log:    logger,
		clock:  clock,
		grants: make(map[grantKey]*PermissionGrant),
		byUser: make(map[common.Address]set.Set[common.Address]),
	}
}

func (l *Ledger) now() uint64 {
	return uint64(l.clock.Now().Unix())
}

// Grant records a permit for (contract, user), replacing any earlier one.
func (l *Ledger) Grant(contract, user string, signature []byte, expiresAt uint64) error {
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		return err
	}
	userAddr, err := ParseAddress(user)
	if err != nil {
		return err
	}
	return l.grant(contractAddr, userAddr, signature, expiresAt)
}

func (l *Ledger) grant(contract, user common.Address, signature []byte, expiresAt uint64) error {
	if err := checkSignature(signature); err != nil {
		return err
	}
	now := l.now()
	if expiresAt <= now {
		return fmt.Errorf("%w: expiry %d is not after %d", ErrExpiredGrant, expiresAt, now)
	}

	g := &PermissionGrant{
		Contract:  contract,
		User:      user,
		Signature: bytes.Clone(signature),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	l.put(g)
	l.log.Debug("permission granted",
		log.Stringer("contract", contract),
		log.Stringer("user", user),
		log.Int("expiresAt", int(expiresAt)),
	)
	return nil
}

// put stores g. Callers must hold the write lock.
func (l *Ledger) put(g *PermissionGrant) {
	l.grants[grantKey{contract: g.Contract, user: g.User}] = g
	contracts, ok := l.byUser[g.User]
	if !ok {
		contracts = set.Of[common.Address]()
		l.byUser[g.User] = contracts
	}
	contracts.Add(g.Contract)
}

// IsAuthorized reports whether an unexpired grant exists for (contract, user).
// Malformed addresses are never authorized.
func (l *Ledger) IsAuthorized(contract, user string) bool {
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		return false
	}
	userAddr, err := ParseAddress(user)
	if err != nil {
		return false
	}
	return l.authorized(contractAddr, userAddr)
}

// authorized never mutates: an expired entry is ignored, not removed.
func (l *Ledger) authorized(contract, user common.Address) bool {
	now := l.now()

	l.lock.RLock()
	defer l.lock.RUnlock()

	g, ok := l.grants[grantKey{contract: contract, user: user}]
	return ok && g.Usable(now)
}

// Lookup returns a copy of the unexpired grant for (contract, user).
func (l *Ledger) Lookup(contract, user common.Address) (PermissionGrant, bool) {
	now := l.now()

	l.lock.RLock()
	defer l.lock.RUnlock()

	g, ok := l.grants[grantKey{contract: contract, user: user}]
	if !ok || !g.Usable(now) {
		return PermissionGrant{}, false
	}
	c := *g
	c.Signature = bytes.Clone(g.Signature)
	return c, true
}

// RevokeAll drops every grant held by user and returns how many were removed.
func (l *Ledger) RevokeAll(user string) (int, error) {
	userAddr, err := ParseAddress(user)
	if err != nil {
		return 0, err
	}
	return l.revokeAll(userAddr), nil
}

func (l *Ledger) revokeAll(user common.Address) int {
	l.lock.Lock()
	defer l.lock.Unlock()

	contracts := l.byUser[user]
	for _, contract := range contracts.List() {
		delete(l.grants, grantKey{contract: contract, user: user})
	}
	delete(l.byUser, user)

	if n := contracts.Len(); n > 0 {
		l.log.Info("revoked permissions",
			log.Stringer("user", user),
			log.Int("count", n),
		)
	}
	return contracts.Len()
}

// PurgeExpired removes grants that are no longer usable and returns the count.
func (l *Ledger) PurgeExpired() int {
	now := l.now()

	l.lock.Lock()
	defer l.lock.Unlock()

	var purged int
	for key, g := range l.grants {
		if g.Usable(now) {
			continue
		}
		delete(l.grants, key)
		contracts := l.byUser[key.user]
		contracts.Remove(key.contract)
		if contracts.Len() == 0 {
			delete(l.byUser, key.user)
		} else {
			l.byUser[key.user] = contracts
		}
		purged++
	}
	return purged
}

// Len returns the number of stored grants, expired or not.
func (l *Ledger) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return len(l.grants)
}

// ledgerSnapshot is the serialized form of a ledger.
type ledgerSnapshot struct {
	Grants []*PermissionGrant
}

// Snapshot serializes every unexpired grant.
func (l *Ledger) Snapshot() ([]byte, error) {
	now := l.now()

	l.lock.RLock()
	snap := ledgerSnapshot{Grants: make([]*PermissionGrant, 0, len(l.grants))}
	for _, g := range l.grants {
		if g.Usable(now) {
			snap.Grants = append(snap.Grants, g)
		}
	}
	l.lock.RUnlock()

	b, err := Codec.Marshal(CodecVersion, &snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger: %w", err)
	}
	return b, nil
}

// Restore loads grants from a snapshot, skipping any that expired in the
// meantime. Restored grants overwrite existing ones for the same pair. A
// malformed grant fails the whole restore and leaves the ledger unchanged.
func (l *Ledger) Restore(b []byte) (int, error) {
	var snap ledgerSnapshot
	if _, err := Codec.Unmarshal(b, &snap); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}

	now := l.now()
	valid := make([]*PermissionGrant, 0, len(snap.Grants))
	for i, g := range snap.Grants {
		if g == nil || !g.Usable(now) {
			continue
		}
		if g.ExpiresAt <= g.IssuedAt {
			return 0, fmt.Errorf("%w: grant %d expires at %d, issued at %d", ErrExpiredGrant, i, g.ExpiresAt, g.IssuedAt)
		}
		if err := checkSignature(g.Signature); err != nil {
			return 0, fmt.Errorf("grant %d: %w", i, err)
		}
		valid = append(valid, g)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	for _, g := range valid {
		l.put(g)
	}
	return len(valid), nil
}
