// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhevm/engine"
	"github.com/luxfi/fhevm/signer"
	"github.com/luxfi/fhevm/types"
	"github.com/luxfi/fhevm/utils"
)

// cancelledMessage is the error text of a result whose request was cancelled.
const cancelledMessage = "cancelled"

// AuthorizationPolicy decides what a user decryption needs beyond a well-formed
// signature.
type AuthorizationPolicy uint8

const (
	// RequireGrant requires an unexpired ledger grant for (contract, user).
	RequireGrant AuthorizationPolicy = iota
	// SignatureOnly forwards any well-formed signature and leaves verification
	// to the engine.
	SignatureOnly
	// VerifySignatures recovers the permit signer locally and requires it to be
	// the user.
	VerifySignatures
)

var policyNames = [...]string{
	RequireGrant:     "require-grant",
	SignatureOnly:    "signature-only",
	VerifySignatures: "verify-signatures",
}

func (p AuthorizationPolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("unknown(%d)", uint8(p))
}

// ParseAuthorizationPolicy parses a policy name.
func ParseAuthorizationPolicy(s string) (AuthorizationPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range policyNames {
		if n == name {
			return AuthorizationPolicy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown authorization policy %q", s)
}

// requestState is the lifecycle of a single decryption request.
type requestState uint8

const (
	stateCreated requestState = iota
	stateAuthorized
	stateDispatched
	stateCompleted
	stateRejected
	stateFailed
	stateCancelled
)

func (s requestState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateAuthorized:
		return "authorized"
	case stateDispatched:
		return "dispatched"
	case stateCompleted:
		return "completed"
	case stateRejected:
		return "rejected"
	case stateFailed:
		return "failed"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DecryptionRequest is a single decryption as it moves through the pipeline.
type DecryptionRequest struct {
	Handle    types.Handle
	Contract  common.Address
	User      common.Address
	Signature []byte
	Public    bool

	id    ids.ID
	state requestState
}

// DecryptionResult is the outcome of one decryption. Value is meaningful only
// when Success is true; a failed result carries a zero Value.
type DecryptionResult struct {
	Handle  types.Handle
	Value   *uint256.Int
	Success bool
	Error   string
	Kind    ErrorKind
}

// Err returns the failure as an *Error, or nil on success.
func (r *DecryptionResult) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Message: r.Error}
}

func failedResult(h types.Handle, err error) DecryptionResult {
	kind := Classify(err)
	msg := err.Error()
	if kind == KindCancelled {
		msg = cancelledMessage
	}
	return DecryptionResult{
		Handle: h,
		Value:  new(uint256.Int),
		Error:  msg,
		Kind:   kind,
	}
}

// Pipeline validates, authorizes and dispatches decryption requests.
type Pipeline struct {
	log      log.Logger
	registry *Registry
	ledger   *Ledger
	engine   engine.Engine
	metrics  *pipelineMetrics

	policy      AuthorizationPolicy
	domain      signer.Domain
	retry       []utils.RetryOption
	concurrency int
	timeout     time.Duration

	seq atomic.Uint64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPolicy sets the authorization policy. domain is used to rebuild permits
// under VerifySignatures.
func WithPolicy(policy AuthorizationPolicy, domain signer.Domain) PipelineOption {
	return func(p *Pipeline) {
		p.policy = policy
		p.domain = domain
	}
}

// WithRetry adjusts how engine calls are retried. The pipeline's own
// classifier applies unless one of opts replaces it.
func WithRetry(opts ...utils.RetryOption) PipelineOption {
	return func(p *Pipeline) { p.retry = append(p.retry, opts...) }
}

// WithConcurrency lets batches dispatch up to n requests at once.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) { p.concurrency = n }
}

// WithTimeout bounds each request's dispatch, retries included.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMetrics registers the pipeline's metrics on registerer.
func WithMetrics(registerer prometheus.Registerer) PipelineOption {
	return func(p *Pipeline) { p.metrics = newPipelineMetrics(registerer) }
}

// NewPipeline returns a pipeline reading handles from registry and grants from
// ledger.
func NewPipeline(
	logger log.Logger,
	registry *Registry,
	ledger *Ledger,
	eng engine.Engine,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		log:         logger,
		registry:    registry,
		ledger:      ledger,
		engine:      eng,
		policy:      RequireGrant,
		retry:       []utils.RetryOption{utils.WithClassifier(IsRetryable)},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = newPipelineMetrics(prometheus.NewRegistry())
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// RequestUserDecrypt decrypts handle for user through contract. Malformed
// input, registry violations and missing authorization are returned as errors
// without contacting the engine. Once dispatched, the outcome is reported in the
// result: exhausted retries and cancellation produce Success false and a nil
// error.
func (p *Pipeline) RequestUserDecrypt(
	ctx context.Context,
	handle types.Handle,
	contract string,
	user string,
	signature []byte,
) (DecryptionResult, error) {
	contractAddr, userAddr, err := parseUserRequest(contract, user, signature)
	if err != nil {
		return DecryptionResult{}, err
	}
	req := p.newRequest(handle, contractAddr, userAddr, signature, false)
	return p.process(ctx, req)
}

// BatchUserDecrypt decrypts each handle independently. Results line up with
// handles; a failure, including a rejected request, affects only its own entry.
func (p *Pipeline) BatchUserDecrypt(
	ctx context.Context,
	handles []types.Handle,
	contract string,
	user string,
	signature []byte,
) []DecryptionResult {
	contractAddr, userAddr, err := parseUserRequest(contract, user, signature)
	if err != nil {
		results := make([]DecryptionResult, len(handles))
		for i, h := range handles {
			results[i] = failedResult(h, err)
		}
		return results
	}
	return p.batch(ctx, handles, func(h types.Handle) *DecryptionRequest {
		return p.newRequest(h, contractAddr, userAddr, signature, false)
	})
}

// RequestPublicDecrypt decrypts a handle contract has made publicly
// decryptable. No grant is consulted but the handle must still be confirmed.
func (p *Pipeline) RequestPublicDecrypt(ctx context.Context, handle types.Handle, contract string) (DecryptionResult, error) {
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		return DecryptionResult{}, err
	}
	req := p.newRequest(handle, contractAddr, common.Address{}, nil, true)
	return p.process(ctx, req)
}

// BatchPublicDecrypt is the public counterpart of BatchUserDecrypt.
func (p *Pipeline) BatchPublicDecrypt(ctx context.Context, handles []types.Handle, contract string) []DecryptionResult {
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		results := make([]DecryptionResult, len(handles))
		for i, h := range handles {
			results[i] = failedResult(h, err)
		}
		return results
	}
	return p.batch(ctx, handles, func(h types.Handle) *DecryptionRequest {
		return p.newRequest(h, contractAddr, common.Address{}, nil, true)
	})
}

func parseUserRequest(contract, user string, signature []byte) (common.Address, common.Address, error) {
	contractAddr, err := ParseAddress(contract)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	userAddr, err := ParseAddress(user)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if err := checkSignature(signature); err != nil {
		return common.Address{}, common.Address{}, err
	}
	return contractAddr, userAddr, nil
}

func (p *Pipeline) newRequest(h types.Handle, contract, user common.Address, signature []byte, public bool) *DecryptionRequest {
	return &DecryptionRequest{
		Handle:    h,
		Contract:  contract,
		User:      user,
		Signature: signature,
		Public:    public,
		id:        requestID(p.seq.Add(1), h, contract, user),
		state:     stateCreated,
	}
}

// batch runs every request to a result, never returning early. Results are
// written by index so their order matches handles regardless of completion
// order.
func (p *Pipeline) batch(ctx context.Context, handles []types.Handle, build func(types.Handle) *DecryptionRequest) []DecryptionResult {
	results := make([]DecryptionResult, len(handles))
	run := func(i int) {
		res, err := p.process(ctx, build(handles[i]))
		if err != nil {
			res = failedResult(handles[i], err)
		}
		results[i] = res
	}

	if p.concurrency == 1 || len(handles) < 2 {
		for i := range handles {
			run(i)
		}
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(p.concurrency)
	for i := range handles {
		eg.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (p *Pipeline) transition(req *DecryptionRequest, to requestState) {
	p.log.Debug("decryption request transition",
		log.Stringer("requestID", req.id),
		log.Stringer("handle", req.Handle),
		log.Stringer("from", req.state),
		log.Stringer("to", to),
	)
	req.state = to
}

// process runs one request from Created to a terminal state.
func (p *Pipeline) process(ctx context.Context, req *DecryptionRequest) (DecryptionResult, error) {
	if err := p.authorize(req); err != nil {
		p.transition(req, stateRejected)
		p.log.Info("rejected decryption request",
			log.Stringer("requestID", req.id),
			log.Stringer("handle", req.Handle),
			log.Stringer("contract", req.Contract),
			log.Err(err),
		)
		p.metrics.observe(req.Public, outcomeRejected)
		return DecryptionResult{}, err
	}
	p.transition(req, stateAuthorized)

	result := p.dispatch(ctx, req)
	switch {
	case result.Success:
		p.transition(req, stateCompleted)
		p.metrics.observe(req.Public, outcomeCompleted)
	case result.Kind == KindCancelled:
		p.transition(req, stateCancelled)
		p.metrics.observe(req.Public, outcomeCancelled)
	default:
		p.transition(req, stateFailed)
		p.log.Warn("decryption failed",
			log.Stringer("requestID", req.id),
			log.Stringer("handle", req.Handle),
			log.Stringer("kind", result.Kind),
		)
		p.metrics.observe(req.Public, outcomeFailed)
	}
	return result, nil
}

// authorize checks the handle is confirmed and, for user requests, that the
// policy admits the caller.
func (p *Pipeline) authorize(req *DecryptionRequest) error {
	_, state, err := p.registry.Lookup(req.Handle)
	if err != nil {
		return err
	}
	if state != StateConfirmed {
		return fmt.Errorf("%w: %s is %s", ErrHandleNotConfirmed, req.Handle, state)
	}
	if req.Public {
		return nil
	}

	switch p.policy {
	case RequireGrant:
		if !p.ledger.authorized(req.Contract, req.User) {
			return fmt.Errorf("%w: no active grant for %s on %s", ErrUnauthorized, req.User, req.Contract)
		}
	case SignatureOnly:
	case VerifySignatures:
		permit := &signer.Permit{Domain: p.domain, User: req.User, Contract: req.Contract}
		if err := signer.VerifyPermit(permit, req.Signature); err != nil {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
	default:
		return fmt.Errorf("%w: unknown policy %s", ErrUnauthorized, p.policy)
	}
	return nil
}

// dispatch sends the request to the engine through the retry coordinator.
func (p *Pipeline) dispatch(ctx context.Context, req *DecryptionRequest) DecryptionResult {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	p.transition(req, stateDispatched)

	call := func(ctx context.Context) (*uint256.Int, error) {
		p.metrics.attempts.Inc()
		if req.Public {
			return p.engine.PublicDecrypt(ctx, req.Handle, req.Contract)
		}
		return p.engine.DecryptWithAuthorization(ctx, req.Handle, req.Contract, req.Signature)
	}

	start := time.Now()
	value, err := utils.Execute(ctx, p.log, call, p.retry...)
	p.metrics.dispatchLatencyMS.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return failedResult(req.Handle, err)
	}
	if value == nil {
		return failedResult(req.Handle, fmt.Errorf("%w: engine returned no value", engine.ErrBadRequest))
	}
	return DecryptionResult{
		Handle:  req.Handle,
		Value:   value,
		Success: true,
	}
}
