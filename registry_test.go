// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"bytes"
	"sync"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm/types"
)

func TestRegistryLifecycle(t *testing.T) {
	require := require.New(t)
	r := NewRegistry(log.NewLogger("test"), WithRegistryClock(newManualClock()))

	h, err := r.Register(types.Uint32)
	require.NoError(err)
	require.True(h.IsEncrypted())
	require.Equal(byte(types.Uint32), h[types.HandleLen-2])

	typ, state, err := r.Lookup(h)
	require.NoError(err)
	require.Equal(types.Uint32, typ)
	require.Equal(StatePending, state)

	require.NoError(r.Confirm(h, []byte{1}, []byte{2}))
	_, state, err = r.Lookup(h)
	require.NoError(err)
	require.Equal(StateConfirmed, state)

	record, err := r.Get(h)
	require.NoError(err)
	require.Equal([]byte{1}, record.Ciphertext)
	record.Ciphertext[0] = 9
	record, err = r.Get(h)
	require.NoError(err)
	require.Equal([]byte{1}, record.Ciphertext)

	err = r.Confirm(h, []byte{1}, []byte{2})
	require.ErrorIs(err, ErrInvalidStateTransition)

	require.NoError(r.Revoke(h))
	require.NoError(r.Revoke(h))
	_, state, err = r.Lookup(h)
	require.NoError(err)
	require.Equal(StateRevoked, state)

	require.ErrorIs(r.Confirm(h, []byte{1}, []byte{2}), ErrInvalidStateTransition)
}

func TestRegistryErrors(t *testing.T) {
	require := require.New(t)
	r := NewRegistry(log.NewLogger("test"))
	unknown := types.HandleFromUint64(1)

	_, _, err := r.Lookup(unknown)
	require.ErrorIs(err, ErrHandleNotFound)
	require.ErrorIs(r.Confirm(unknown, []byte{1}, []byte{1}), ErrHandleNotFound)
	require.ErrorIs(r.Revoke(unknown), ErrHandleNotFound)

	_, err = r.Register(types.FheType(200))
	require.ErrorIs(err, types.ErrUnknownType)

	h, err := r.Register(types.Bool)
	require.NoError(err)
	require.ErrorIs(r.Confirm(h, nil, []byte{1}), ErrInvalidCiphertext)
	require.ErrorIs(r.Confirm(h, []byte{1}, nil), ErrInvalidCiphertext)
	_, state, err := r.Lookup(h)
	require.NoError(err)
	require.Equal(StatePending, state)
}

func TestRegistryCollision(t *testing.T) {
	require := require.New(t)

	// the same entropy twice yields the same id
	entropy := bytes.Repeat([]byte{0xab}, 2*types.HandleLen)
	r := NewRegistry(log.NewLogger("test"), WithEntropy(bytes.NewReader(entropy)))

	h, err := r.Register(types.Uint8)
	require.NoError(err)
	_, err = r.Register(types.Uint8)
	require.ErrorIs(err, ErrHandleCollision)

	_, state, err := r.Lookup(h)
	require.NoError(err)
	require.Equal(StatePending, state)
	require.Equal(1, r.Len())
}

func TestRegistryEntropyExhausted(t *testing.T) {
	require := require.New(t)

	// all-zero entropy never leaves the uint64 range
	entropy := make([]byte, maxHandleDraws*types.HandleLen)
	r := NewRegistry(log.NewLogger("test"), WithEntropy(bytes.NewReader(entropy)))

	_, err := r.Register(types.Uint8)
	require.ErrorIs(err, ErrWeakEntropy)
	require.Zero(r.Len())

	_, err = r.Register(types.Uint8)
	require.ErrorContains(err, "failed to read entropy")
}

func TestRegistryImport(t *testing.T) {
	require := require.New(t)
	r := NewRegistry(log.NewLogger("test"))

	h := types.HandleFromUint64(1 << 40)
	require.NoError(r.Import(h, types.Uint64, []byte{7}))
	_, state, err := r.Lookup(h)
	require.NoError(err)
	require.Equal(StateConfirmed, state)

	require.ErrorIs(r.Import(h, types.Uint64, nil), ErrHandleCollision)
	require.ErrorIs(r.Import(types.Handle{}, types.Uint64, nil), types.ErrInvalidHandle)
}

func TestRegistryConcurrentConfirm(t *testing.T) {
	require := require.New(t)
	r := NewRegistry(log.NewLogger("test"))

	h, err := r.Register(types.Uint8)
	require.NoError(err)

	const n = 16
	var (
		wg        sync.WaitGroup
		lock      sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Confirm(h, []byte{byte(i) + 1}, []byte{1}); err == nil {
				lock.Lock()
				successes++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(1, successes)
}

func TestRegistryConcurrentConfirmRevoke(t *testing.T) {
	require := require.New(t)
	r := NewRegistry(log.NewLogger("test"))

	const n = 64
	for i := 0; i < n; i++ {
		h, err := r.Register(types.Uint16)
		require.NoError(err)

		var (
			wg         sync.WaitGroup
			confirmErr error
			revokeErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			confirmErr = r.Confirm(h, []byte{1}, []byte{2})
		}()
		go func() {
			defer wg.Done()
			revokeErr = r.Revoke(h)
		}()
		wg.Wait()

		require.NoError(revokeErr)
		if confirmErr != nil {
			require.ErrorIs(confirmErr, ErrInvalidStateTransition)
		}
		_, state, err := r.Lookup(h)
		require.NoError(err)
		require.Equal(StateRevoked, state)
	}
}

func TestRegistryUniqueHandles(t *testing.T) {
	r := NewRegistry(log.NewLogger("test"))

	seen := make(map[types.Handle]struct{})
	for i := 0; i < 1000; i++ {
		h, err := r.Register(types.Uint256)
		require.NoError(t, err)
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
	}
}
