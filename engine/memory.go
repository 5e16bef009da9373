// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm/signer"
	"github.com/luxfi/fhevm/types"
)

var (
	_ Engine    = (*Memory)(nil)
	_ Publisher = (*Memory)(nil)
)

type plaintext struct {
	value *uint256.Int
	typ   types.FheType
}

// Memory is an in-process engine. Ciphertexts are random tokens and plaintexts
// stay in memory, so it offers no confidentiality. It exists for tests and
// demos, and can inject failures and latency.
type Memory struct {
	signer    signer.Signer
	domain    signer.Domain
	publicKey []byte

	lock         sync.Mutex
	pending      map[string]plaintext
	values       map[types.Handle]plaintext
	failures     map[types.Handle]int
	calls        map[types.Handle]int
	publishFails int
	latency      time.Duration
}

// NewMemory returns an engine whose permits are signed by s.
func NewMemory(s signer.Signer, domain signer.Domain) *Memory {
	publicKey := sha256.Sum256([]byte("memory engine public key"))
	return &Memory{
		signer:    s,
		domain:    domain,
		publicKey: publicKey[:],
		pending:   make(map[string]plaintext),
		values:    make(map[types.Handle]plaintext),
		failures:  make(map[types.Handle]int),
		calls:     make(map[types.Handle]int),
	}
}

// FailDecrypt makes the next n decryptions of h fail as unavailable. A negative
// n fails every decryption of h.
func (m *Memory) FailDecrypt(h types.Handle, n int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.failures[h] = n
}

// FailPublish makes the next n publications fail.
func (m *Memory) FailPublish(n int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.publishFails = n
}

// SetLatency delays every decryption by d, or until the context is done.
func (m *Memory) SetLatency(d time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.latency = d
}

// DecryptCalls returns how many decryptions of h were attempted.
func (m *Memory) DecryptCalls(h types.Handle) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.calls[h]
}

// Store binds a plaintext directly to a handle, as if it had been computed
// on chain.
func (m *Memory) Store(h types.Handle, value *uint256.Int, t types.FheType) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.values[h] = plaintext{value: value.Clone(), typ: t}
}

func (m *Memory) Encrypt(ctx context.Context, value *uint256.Int, t types.FheType) (*Ciphertext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.CheckRange(value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	data := make([]byte, 32)
	if _, err := rand.Read(data[1:]); err != nil {
		return nil, err
	}
	data[0] = byte(t)
	proof := sha256.Sum256(append(bytes.Clone(data), value.Bytes()...))

	m.lock.Lock()
	defer m.lock.Unlock()

	m.pending[string(data)] = plaintext{value: value.Clone(), typ: t}
	return &Ciphertext{Data: data, InputProof: proof[:], Type: t}, nil
}

func (m *Memory) Publish(ctx context.Context, h types.Handle, ct *Ciphertext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.publishFails > 0 {
		m.publishFails--
		return fmt.Errorf("%w: input rejected", ErrEngineUnavailable)
	}
	pt, ok := m.pending[string(ct.Data)]
	if !ok {
		return ErrInvalidCiphertext
	}
	delete(m.pending, string(ct.Data))
	m.values[h] = pt
	return nil
}

func (m *Memory) DecryptWithAuthorization(ctx context.Context, h types.Handle, _ common.Address, signature []byte) (*uint256.Int, error) {
	if len(signature) != signer.SignatureLen {
		return nil, fmt.Errorf("%w: signature must be %d bytes", ErrBadRequest, signer.SignatureLen)
	}
	return m.decrypt(ctx, h)
}

func (m *Memory) PublicDecrypt(ctx context.Context, h types.Handle, _ common.Address) (*uint256.Int, error) {
	return m.decrypt(ctx, h)
}

func (m *Memory) decrypt(ctx context.Context, h types.Handle) (*uint256.Int, error) {
	m.lock.Lock()
	m.calls[h]++
	latency := m.latency
	m.lock.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if n, ok := m.failures[h]; ok && n != 0 {
		if n > 0 {
			m.failures[h] = n - 1
		}
		return nil, fmt.Errorf("%w: injected failure for %s", ErrEngineUnavailable, h)
	}
	pt, ok := m.values[h]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrBadRequest, ErrUnknownHandle, h)
	}
	return pt.value.Clone(), nil
}

func (m *Memory) GenerateAuthorizationSignature(ctx context.Context, contract common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.signer.SignPermit(&signer.Permit{
		Domain:   m.domain,
		User:     m.signer.Address(),
		Contract: contract,
	})
}

func (m *Memory) GetPublicKey(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return bytes.Clone(m.publicKey), nil
}
