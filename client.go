// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"

	"github.com/luxfi/fhevm/engine"
	"github.com/luxfi/fhevm/signer"
	"github.com/luxfi/fhevm/types"
	"github.com/luxfi/fhevm/utils"
)

const (
	// DefaultPermitTTL is how long a generated permit stays usable.
	DefaultPermitTTL = 24 * time.Hour
	// DefaultSubmitTimeout bounds Submit when no timeout is given.
	DefaultSubmitTimeout = 2 * time.Minute
)

// EncryptedInput is a confirmed handle with the material a contract call needs
// to accept it.
type EncryptedInput struct {
	Handle     types.Handle
	Type       types.FheType
	Ciphertext []byte
	InputProof []byte
}

// SubmitFunc sends encrypted inputs on-chain, typically as the arguments of one
// transaction, and returns once the transaction is accepted.
type SubmitFunc func(ctx context.Context, inputs []EncryptedInput) error

// Client is one session against an engine. It owns the registry, the ledger
// and the pipeline; nothing is shared between clients.
type Client struct {
	log      log.Logger
	clock    Clock
	domain   signer.Domain
	engine   engine.Engine
	registry *Registry
	ledger   *Ledger
	pipeline *Pipeline
	retry    []utils.RetryOption
}

type clientConfig struct {
	clock        Clock
	domain       signer.Domain
	registryOpts []RegistryOption
	pipelineOpts []PipelineOption
	retry        []utils.RetryOption
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithClock sets the clock shared by the registry and the ledger.
func WithClock(c Clock) ClientOption {
	return func(cfg *clientConfig) { cfg.clock = c }
}

// WithDomain sets the permit domain the engine signs under. Permits that do
// not verify against it are refused.
func WithDomain(d signer.Domain) ClientOption {
	return func(cfg *clientConfig) { cfg.domain = d }
}

// WithRegistryOptions passes options through to the registry.
func WithRegistryOptions(opts ...RegistryOption) ClientOption {
	return func(cfg *clientConfig) { cfg.registryOpts = append(cfg.registryOpts, opts...) }
}

// WithPipelineOptions passes options through to the pipeline.
func WithPipelineOptions(opts ...PipelineOption) ClientOption {
	return func(cfg *clientConfig) { cfg.pipelineOpts = append(cfg.pipelineOpts, opts...) }
}

// WithClientRetry sets how encryption and decryption calls to the engine are
// retried.
func WithClientRetry(opts ...utils.RetryOption) ClientOption {
	return func(cfg *clientConfig) { cfg.retry = append(cfg.retry, opts...) }
}

// NewClient returns a session using eng.
func NewClient(logger log.Logger, eng engine.Engine, opts ...ClientOption) *Client {
	cfg := clientConfig{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	registryOpts := append([]RegistryOption{WithRegistryClock(cfg.clock)}, cfg.registryOpts...)
	registry := NewRegistry(logger, registryOpts...)
	ledger := NewLedger(logger, cfg.clock)

	retry := append([]utils.RetryOption{utils.WithClassifier(IsRetryable)}, cfg.retry...)
	pipelineOpts := append([]PipelineOption{WithRetry(cfg.retry...)}, cfg.pipelineOpts...)

	return &Client{
		log:      logger,
		clock:    cfg.clock,
		domain:   cfg.domain,
		engine:   eng,
		registry: registry,
		ledger:   ledger,
		pipeline: NewPipeline(logger, registry, ledger, eng, pipelineOpts...),
		retry:    retry,
	}
}

func (c *Client) Registry() *Registry { return c.registry }

func (c *Client) Ledger() *Ledger { return c.ledger }

func (c *Client) Pipeline() *Pipeline { return c.pipeline }

// Encrypt encrypts value as type t and returns its confirmed handle. The
// handle is registered before the engine is called; if encryption or
// publication fails it is revoked.
func (c *Client) Encrypt(ctx context.Context, value *uint256.Int, t types.FheType) (types.Handle, error) {
	if value == nil {
		return types.Handle{}, fmt.Errorf("%w: nil value", types.ErrValueOutOfRange)
	}
	if err := t.CheckRange(value); err != nil {
		return types.Handle{}, err
	}

	h, err := c.registry.Register(t)
	if err != nil {
		return types.Handle{}, err
	}

	if err := c.encrypt(ctx, h, value, t); err != nil {
		if revokeErr := c.registry.Revoke(h); revokeErr != nil {
			c.log.Error("failed to revoke handle",
				log.Stringer("handle", h),
				log.Err(revokeErr),
			)
		}
		return types.Handle{}, err
	}
	return h, nil
}

func (c *Client) encrypt(ctx context.Context, h types.Handle, value *uint256.Int, t types.FheType) error {
	ct, err := utils.Execute(ctx, c.log, func(ctx context.Context) (*engine.Ciphertext, error) {
		return c.engine.Encrypt(ctx, value, t)
	}, c.retry...)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", t, err)
	}
	if ct.Type != t {
		return fmt.Errorf("%w: engine returned %s for %s", ErrInvalidCiphertext, ct.Type, t)
	}

	if publisher, ok := c.engine.(engine.Publisher); ok {
		_, err := utils.Execute(ctx, c.log, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, publisher.Publish(ctx, h, ct)
		}, c.retry...)
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", h, err)
		}
	}
	return c.registry.Confirm(h, ct.Data, ct.InputProof)
}

// EncryptBool encrypts a boolean.
func (c *Client) EncryptBool(ctx context.Context, v bool) (types.Handle, error) {
	value := new(uint256.Int)
	if v {
		value.SetOne()
	}
	return c.Encrypt(ctx, value, types.Bool)
}

// EncryptAddress encrypts a 0x-prefixed address.
func (c *Client) EncryptAddress(ctx context.Context, address string) (types.Handle, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return types.Handle{}, err
	}
	return c.Encrypt(ctx, new(uint256.Int).SetBytes(addr.Bytes()), types.Address)
}

// EncryptBatch encrypts values in order. On failure every handle created by the
// batch is revoked.
func (c *Client) EncryptBatch(ctx context.Context, values []*uint256.Int, t types.FheType) ([]types.Handle, error) {
	handles := make([]types.Handle, 0, len(values))
	for i, v := range values {
		h, err := c.Encrypt(ctx, v, t)
		if err != nil {
			for _, created := range handles {
				_ = c.registry.Revoke(created)
			}
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Submit hands the confirmed handles to submit and waits at most timeout for it
// to return. If submit fails, the deadline passes or ctx is cancelled, every
// handle is revoked. A non-positive timeout uses DefaultSubmitTimeout.
func (c *Client) Submit(ctx context.Context, handles []types.Handle, timeout time.Duration, submit SubmitFunc) error {
	if len(handles) == 0 {
		return errors.New("no handles to submit")
	}
	inputs := make([]EncryptedInput, len(handles))
	for i, h := range handles {
		record, err := c.registry.Get(h)
		if err != nil {
			return err
		}
		if record.State != StateConfirmed {
			return fmt.Errorf("%w: %s is %s", ErrHandleNotConfirmed, h, record.State)
		}
		inputs[i] = EncryptedInput{
			Handle:     h,
			Type:       record.Type,
			Ciphertext: record.Ciphertext,
			InputProof: record.InputProof,
		}
	}

	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- submit(ctx, inputs)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}

	for _, h := range handles {
		if revokeErr := c.registry.Revoke(h); revokeErr != nil {
			c.log.Error("failed to revoke handle",
				log.Stringer("handle", h),
				log.Err(revokeErr),
			)
		}
	}
	c.log.Warn("submission failed, revoked handles",
		log.Int("count", len(handles)),
		log.Err(err),
	)
	return fmt.Errorf("failed to submit %d handle(s): %w", len(handles), err)
}

// GeneratePermit asks the engine for a permit over contract and records it in
// the ledger for user until ttl from now. A non-positive ttl uses
// DefaultPermitTTL. The permit must recover to user under the client's
// domain; a permit signed by any other account is not recorded.
func (c *Client) GeneratePermit(ctx context.Context, contract, user string, ttl time.Duration) ([]byte, error) {
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		return nil, err
	}
	userAddr, err := ParseAddress(user)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultPermitTTL
	}
	seconds := uint64(ttl / time.Second)
	if seconds == 0 {
		seconds = 1
	}
	expiresAt, err := AddUint64(uint64(c.clock.Now().Unix()), seconds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExpiredGrant, err)
	}

	sig, err := c.engine.GenerateAuthorizationSignature(ctx, contractAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to generate permit: %w", err)
	}
	permit := &signer.Permit{Domain: c.domain, User: userAddr, Contract: contractAddr}
	if err := signer.VerifyPermit(permit, sig); err != nil {
		c.log.Warn("refusing permit",
			log.Stringer("contract", contractAddr),
			log.Stringer("user", userAddr),
			log.Err(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err := c.ledger.grant(contractAddr, userAddr, sig, expiresAt); err != nil {
		return nil, err
	}
	return sig, nil
}

// UserDecrypt decrypts handle for user; see Pipeline.RequestUserDecrypt.
func (c *Client) UserDecrypt(ctx context.Context, handle types.Handle, contract, user string, signature []byte) (DecryptionResult, error) {
	return c.pipeline.RequestUserDecrypt(ctx, handle, contract, user, signature)
}

func (c *Client) BatchUserDecrypt(ctx context.Context, handles []types.Handle, contract, user string, signature []byte) []DecryptionResult {
	return c.pipeline.BatchUserDecrypt(ctx, handles, contract, user, signature)
}

func (c *Client) PublicDecrypt(ctx context.Context, handle types.Handle, contract string) (DecryptionResult, error) {
	return c.pipeline.RequestPublicDecrypt(ctx, handle, contract)
}

func (c *Client) BatchPublicDecrypt(ctx context.Context, handles []types.Handle, contract string) []DecryptionResult {
	return c.pipeline.BatchPublicDecrypt(ctx, handles, contract)
}

// Disconnect drops every permit held by user.
func (c *Client) Disconnect(user string) (int, error) {
	return c.ledger.RevokeAll(user)
}

// PublicKey returns the engine's public key.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	key, err := c.engine.GetPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("engine returned an empty public key")
	}
	return key, nil
}
