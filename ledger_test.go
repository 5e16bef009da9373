// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"bytes"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0x1111111111111111111111111111111111111111"
	testUser     = "0x2222222222222222222222222222222222222222"
	otherUser    = "0x3333333333333333333333333333333333333333"
)

var testSignature = bytes.Repeat([]byte{0x01}, SignatureLen)

func TestLedgerGrantExpiry(t *testing.T) {
	require := require.New(t)
	clock := newManualClock()
	l := NewLedger(log.NewLogger("test"), clock)

	require.False(l.IsAuthorized(testContract, testUser))
	require.NoError(l.Grant(testContract, testUser, testSignature, clock.Unix()+1))
	require.True(l.IsAuthorized(testContract, testUser))
	require.False(l.IsAuthorized(testContract, otherUser))

	clock.Advance(time.Second)
	require.False(l.IsAuthorized(testContract, testUser))
	// expired grants are ignored, not removed
	require.Equal(1, l.Len())
	require.Equal(1, l.PurgeExpired())
	require.Zero(l.Len())
}

func TestLedgerGrantValidation(t *testing.T) {
	clock := newManualClock()
	l := NewLedger(log.NewLogger("test"), clock)

	tests := []struct {
		name      string
		contract  string
		user      string
		signature []byte
		expiresAt uint64
		expectErr error
	}{
		{
			name:      "short contract",
			contract:  "0x1234",
			user:      testUser,
			signature: testSignature,
			expiresAt: clock.Unix() + 60,
			expectErr: ErrInvalidAddress,
		},
		{
			name:      "unprefixed user",
			contract:  testContract,
			user:      "2222222222222222222222222222222222222222",
			signature: testSignature,
			expiresAt: clock.Unix() + 60,
			expectErr: ErrInvalidAddress,
		},
		{
			name:      "short signature",
			contract:  testContract,
			user:      testUser,
			signature: testSignature[:64],
			expiresAt: clock.Unix() + 60,
			expectErr: ErrInvalidSignatureFormat,
		},
		{
			name:      "expires now",
			contract:  testContract,
			user:      testUser,
			signature: testSignature,
			expiresAt: clock.Unix(),
			expectErr: ErrExpiredGrant,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := l.Grant(test.contract, test.user, test.signature, test.expiresAt)
			require.ErrorIs(t, err, test.expectErr)
		})
	}
	require.Zero(t, l.Len())
	require.False(t, l.IsAuthorized("not an address", testUser))
}

func TestLedgerLastWriteWins(t *testing.T) {
	require := require.New(t)
	clock := newManualClock()
	l := NewLedger(log.NewLogger("test"), clock)

	require.NoError(l.Grant(testContract, testUser, testSignature, clock.Unix()+10))
	other := bytes.Repeat([]byte{0x02}, SignatureLen)
	require.NoError(l.Grant(testContract, testUser, other, clock.Unix()+100))
	require.Equal(1, l.Len())

	g, ok := l.Lookup(mustParseAddress(t, testContract), mustParseAddress(t, testUser))
	require.True(ok)
	require.Equal(other, g.Signature)
	require.Equal(clock.Unix()+100, g.ExpiresAt)
}

func TestLedgerRevokeAll(t *testing.T) {
	require := require.New(t)
	clock := newManualClock()
	l := NewLedger(log.NewLogger("test"), clock)

	contracts := []string{
		testContract,
		"0x4444444444444444444444444444444444444444",
		"0x5555555555555555555555555555555555555555",
	}
	for _, c := range contracts {
		require.NoError(l.Grant(c, testUser, testSignature, clock.Unix()+60))
	}
	require.NoError(l.Grant(testContract, otherUser, testSignature, clock.Unix()+60))

	n, err := l.RevokeAll(testUser)
	require.NoError(err)
	require.Equal(3, n)
	for _, c := range contracts {
		require.False(l.IsAuthorized(c, testUser))
	}
	require.True(l.IsAuthorized(testContract, otherUser))

	n, err = l.RevokeAll(testUser)
	require.NoError(err)
	require.Zero(n)

	_, err = l.RevokeAll("bogus")
	require.ErrorIs(err, ErrInvalidAddress)
}

func TestLedgerSnapshotRestore(t *testing.T) {
	require := require.New(t)
	clock := newManualClock()
	l := NewLedger(log.NewLogger("test"), clock)

	require.NoError(l.Grant(testContract, testUser, testSignature, clock.Unix()+60))
	require.NoError(l.Grant(testContract, otherUser, testSignature, clock.Unix()+3600))

	b, err := l.Snapshot()
	require.NoError(err)

	clock.Advance(2 * time.Minute)
	restored := NewLedger(log.NewLogger("test"), clock)
	n, err := restored.Restore(b)
	require.NoError(err)
	require.Equal(1, n)
	require.False(restored.IsAuthorized(testContract, testUser))
	require.True(restored.IsAuthorized(testContract, otherUser))

	_, err = restored.Restore([]byte{0x01, 0x02})
	require.Error(err)
}

func TestLedgerGrantFreshUsers(t *testing.T) {
	require := require.New(t)
	clock := newManualClock()
	l := NewLedger(log.NewLogger("test"), clock)

	users := []string{testUser, otherUser, "0x6666666666666666666666666666666666666666"}
	for _, user := range users {
		require.NoError(l.Grant(testContract, user, testSignature, clock.Unix()+60))
		require.True(l.IsAuthorized(testContract, user))
	}
	require.Equal(len(users), l.Len())

	// purging the only grant of a user drops the user from the index
	clock.Advance(time.Minute)
	require.Equal(len(users), l.PurgeExpired())
	require.NoError(l.Grant(testContract, testUser, testSignature, clock.Unix()+60))
	n, err := l.RevokeAll(testUser)
	require.NoError(err)
	require.Equal(1, n)
}

func TestLedgerRestoreMalformedGrant(t *testing.T) {
	clock := newManualClock()
	now := clock.Unix()

	tests := []struct {
		name      string
		grant     PermissionGrant
		expectErr error
	}{
		{
			name: "short signature",
			grant: PermissionGrant{
				Signature: testSignature[:10],
				IssuedAt:  now,
				ExpiresAt: now + 60,
			},
			expectErr: ErrInvalidSignatureFormat,
		},
		{
			name: "expires before issued",
			grant: PermissionGrant{
				Signature: testSignature,
				IssuedAt:  now + 120,
				ExpiresAt: now + 60,
			},
			expectErr: ErrExpiredGrant,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			good := &PermissionGrant{
				Contract:  mustParseAddress(t, testContract),
				User:      mustParseAddress(t, testUser),
				Signature: testSignature,
				IssuedAt:  now,
				ExpiresAt: now + 60,
			}
			bad := test.grant
			bad.Contract = mustParseAddress(t, testContract)
			bad.User = mustParseAddress(t, otherUser)

			b, err := Codec.Marshal(CodecVersion, &ledgerSnapshot{Grants: []*PermissionGrant{good, &bad}})
			require.NoError(err)

			l := NewLedger(log.NewLogger("test"), clock)
			n, err := l.Restore(b)
			require.ErrorIs(err, test.expectErr)
			require.Zero(n)
			// the valid grant before the malformed one is not loaded either
			require.Zero(l.Len())
			require.False(l.IsAuthorized(testContract, testUser))
		})
	}
}

func mustParseAddress(t *testing.T, s string) common.Address {
	t.Helper()

	a, err := ParseAddress(s)
	require.NoError(t, err)
	return a
}
