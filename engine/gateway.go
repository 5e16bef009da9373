// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/rpc"
	"github.com/luxfi/log"

	"github.com/luxfi/fhevm/cache"
	"github.com/luxfi/fhevm/signer"
	"github.com/luxfi/fhevm/types"
)

var _ Engine = (*Gateway)(nil)

const (
	methodEncrypt       = "fhe_encrypt"
	methodUserDecrypt   = "fhe_userDecrypt"
	methodPublicDecrypt = "fhe_publicDecrypt"
	methodPublicKey     = "fhe_getPublicKey"

	publicKeyCacheKey = "publicKey"

	defaultRequestTimeout = 30 * time.Second
	defaultPublicKeyTTL   = 10 * time.Minute

	// JSON-RPC codes reserved for server errors, plus internal error
	rpcInternalError   = -32603
	rpcServerErrorLow  = -32099
	rpcServerErrorHigh = -32000
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// URL is the gateway's JSON-RPC endpoint
	URL string
	// KMSPublicKey is the compressed BLS key decryption responses must be signed
	// with. Empty disables response verification.
	KMSPublicKey []byte
	// PublicKeyTTL bounds how long the network key is cached
	PublicKeyTTL time.Duration
	// RequestTimeout bounds a single HTTP exchange
	RequestTimeout time.Duration
	// HTTPClient overrides the default client
	HTTPClient *http.Client
	// HTTPHeaders are added to every request
	HTTPHeaders map[string]string
}

// Gateway talks JSON-RPC over HTTPS to a remote gateway/KMS service. It makes
// exactly one attempt per call; retries belong to the caller.
type Gateway struct {
	log    log.Logger
	rpc    *rpc.Client
	signer signer.Signer
	domain signer.Domain
	kmsKey *bls.PublicKey
	keys   *cache.TTLCache[string, []byte]
}

// NewGateway returns a gateway client that signs permits with s.
func NewGateway(logger log.Logger, cfg GatewayConfig, s signer.Signer, domain signer.Domain) (*Gateway, error) {
	if cfg.URL == "" {
		return nil, errors.New("gateway url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	ttl := cfg.PublicKeyTTL
	if ttl <= 0 {
		ttl = defaultPublicKeyTTL
	}

	var kmsKey *bls.PublicKey
	if len(cfg.KMSPublicKey) > 0 {
		pk, err := bls.PublicKeyFromCompressedBytes(cfg.KMSPublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kms public key: %w", err)
		}
		kmsKey = pk
	}

	opts := []rpc.ClientOption{rpc.WithHTTPClient(httpClient)}
	for key, value := range cfg.HTTPHeaders {
		opts = append(opts, rpc.WithHeader(key, value))
	}
	client, err := rpc.DialOptions(context.Background(), cfg.URL, opts...)
	if err != nil {
		logger.Error(
			"Failed to dial gateway",
			log.String("url", cfg.URL),
			log.Err(err),
		)
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	return &Gateway{
		log:    logger,
		rpc:    client,
		signer: s,
		domain: domain,
		kmsKey: kmsKey,
		keys:   cache.NewTTLCache[string, []byte](ttl),
	}, nil
}

// Close releases the underlying RPC client.
func (g *Gateway) Close() {
	g.rpc.Close()
}

type encryptParams struct {
	Value hexutil.Bytes `json:"value"`
	Type  string        `json:"type"`
}

type encryptResult struct {
	Ciphertext hexutil.Bytes `json:"ciphertext"`
	InputProof hexutil.Bytes `json:"inputProof"`
}

type decryptParams struct {
	Handle    types.Handle   `json:"handle"`
	Contract  common.Address `json:"contract"`
	Signature hexutil.Bytes  `json:"signature,omitempty"`
}

// DecryptResult is a gateway decryption response. Signature is the KMS
// signature over handle || value.
type DecryptResult struct {
	Value     hexutil.Bytes `json:"value"`
	Signature hexutil.Bytes `json:"signature"`
}

type publicKeyResult struct {
	PublicKey hexutil.Bytes `json:"publicKey"`
}

// call performs one JSON-RPC exchange and decodes the result into out.
func (g *Gateway) call(ctx context.Context, out any, method string, args ...any) error {
	start := time.Now()
	err := g.rpc.CallContext(ctx, out, method, args...)
	g.log.Debug("gateway call",
		log.String("method", method),
		log.Stringer("latency", time.Since(start)),
		log.Bool("ok", err == nil),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return classifyRPCError(method, err)
}

// classifyRPCError maps rate limiting, 5xx statuses, JSON-RPC server errors
// (-32000 to -32099), internal errors and transport failures to
// unavailability. Every other status or code is the request's fault.
func classifyRPCError(method string, err error) error {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s: http status %d", ErrEngineUnavailable, method, httpErr.StatusCode)
		}
		return fmt.Errorf("%w: %s: http status %d", ErrBadRequest, method, httpErr.StatusCode)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		if code == rpcInternalError || (code >= rpcServerErrorLow && code <= rpcServerErrorHigh) {
			return fmt.Errorf("%w: %s: rpc error %d: %s", ErrEngineUnavailable, method, code, rpcErr.Error())
		}
		return fmt.Errorf("%w: %s: rpc error %d: %s", ErrBadRequest, method, code, rpcErr.Error())
	}
	return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, method, err)
}

func (g *Gateway) Encrypt(ctx context.Context, value *uint256.Int, t types.FheType) (*Ciphertext, error) {
	if err := t.CheckRange(value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	word := value.Bytes32()
	var res encryptResult
	if err := g.call(ctx, &res, methodEncrypt, encryptParams{Value: word[:], Type: t.String()}); err != nil {
		return nil, err
	}
	if len(res.Ciphertext) == 0 || len(res.InputProof) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext or proof", ErrInvalidCiphertext)
	}
	return &Ciphertext{Data: res.Ciphertext, InputProof: res.InputProof, Type: t}, nil
}

func (g *Gateway) DecryptWithAuthorization(ctx context.Context, h types.Handle, contract common.Address, signature []byte) (*uint256.Int, error) {
	var res DecryptResult
	params := decryptParams{Handle: h, Contract: contract, Signature: signature}
	if err := g.call(ctx, &res, methodUserDecrypt, params); err != nil {
		return nil, err
	}
	return g.verifyDecryption(h, &res)
}

func (g *Gateway) PublicDecrypt(ctx context.Context, h types.Handle, contract common.Address) (*uint256.Int, error) {
	var res DecryptResult
	if err := g.call(ctx, &res, methodPublicDecrypt, decryptParams{Handle: h, Contract: contract}); err != nil {
		return nil, err
	}
	return g.verifyDecryption(h, &res)
}

func (g *Gateway) verifyDecryption(h types.Handle, res *DecryptResult) (*uint256.Int, error) {
	if len(res.Value) > 32 {
		return nil, fmt.Errorf("%w: value is %d bytes", ErrBadRequest, len(res.Value))
	}
	value := new(uint256.Int).SetBytes(res.Value)
	if g.kmsKey == nil {
		return value, nil
	}

	sig, err := bls.SignatureFromBytes(res.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKMSSignature, err)
	}
	if !bls.Verify(g.kmsKey, sig, DecryptionMessage(h, value)) {
		g.log.Warn("rejecting unsigned decryption", log.Stringer("handle", h))
		return nil, ErrInvalidKMSSignature
	}
	return value, nil
}

// DecryptionMessage is the payload the KMS signs for a decryption result.
func DecryptionMessage(h types.Handle, value *uint256.Int) []byte {
	word := value.Bytes32()
	msg := make([]byte, 0, 2*types.HandleLen)
	msg = append(msg, h[:]...)
	return append(msg, word[:]...)
}

func (g *Gateway) GenerateAuthorizationSignature(ctx context.Context, contract common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.signer.SignPermit(&signer.Permit{
		Domain:   g.domain,
		User:     g.signer.Address(),
		Contract: contract,
	})
}

// GetPublicKey returns the network key, fetching it at most once per TTL.
func (g *Gateway) GetPublicKey(ctx context.Context) ([]byte, error) {
	key, err := g.keys.Get(publicKeyCacheKey, func(string) ([]byte, error) {
		var res publicKeyResult
		if err := g.call(ctx, &res, methodPublicKey); err != nil {
			return nil, err
		}
		if len(res.PublicKey) == 0 {
			return nil, fmt.Errorf("%w: empty public key", ErrEngineUnavailable)
		}
		return res.PublicKey, nil
	}, false)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(key), nil
}
