// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/signer"
	"github.com/luxfi/fhevm/utils"
)

const (
	EngineGateway = "gateway"
	EngineMemory  = "memory"

	defaultNetwork             = "local"
	defaultEngine              = EngineGateway
	defaultAuthorizationPolicy = "require-grant"
	defaultRequestTimeout      = 30 * time.Second
	defaultBatchConcurrency    = 1
	defaultPermitTTL           = 24 * time.Hour
	defaultPublicKeyTTL        = 10 * time.Minute
)

var (
	errMissingGatewayURL = errors.New("gateway-url is required for the gateway engine")
	errInvalidJitter     = errors.New("retry-jitter must be within [0, 1)")
)

// Config is the session configuration.
type Config struct {
	Network             string        `mapstructure:"network" json:"network"`
	ChainID             uint64        `mapstructure:"chain-id" json:"chain-id"`
	Engine              string        `mapstructure:"engine" json:"engine"`
	GatewayURL          string        `mapstructure:"gateway-url" json:"gateway-url"`
	KMSPublicKey        string        `mapstructure:"kms-public-key" json:"kms-public-key"`
	PrivateKey          string        `mapstructure:"private-key" json:"-"`
	AuthorizationPolicy string        `mapstructure:"authorization-policy" json:"authorization-policy"`
	RetryMaxAttempts    int           `mapstructure:"retry-max-attempts" json:"retry-max-attempts"`
	RetryInitialDelay   time.Duration `mapstructure:"retry-initial-delay" json:"retry-initial-delay"`
	RetryMaxDelay       time.Duration `mapstructure:"retry-max-delay" json:"retry-max-delay"`
	RetryJitter         float64       `mapstructure:"retry-jitter" json:"retry-jitter"`
	RequestTimeout      time.Duration `mapstructure:"request-timeout" json:"request-timeout"`
	BatchConcurrency    int           `mapstructure:"batch-concurrency" json:"batch-concurrency"`
	PermitTTL           time.Duration `mapstructure:"permit-ttl" json:"permit-ttl"`
	PublicKeyTTL        time.Duration `mapstructure:"public-key-ttl" json:"public-key-ttl"`

	// derived
	policy  fhevm.AuthorizationPolicy
	kmsKey  []byte
	privKey []byte
}

// Validate checks the configuration and fills in derived values. A chain id of
// zero is taken from the network preset.
func (c *Config) Validate() error {
	network, err := LookupNetwork(c.Network)
	if err != nil {
		return err
	}
	if c.ChainID == 0 {
		c.ChainID = network.ChainID
	}

	switch c.Engine {
	case EngineMemory:
	case EngineGateway:
		if c.GatewayURL == "" {
			return errMissingGatewayURL
		}
		u, err := url.Parse(c.GatewayURL)
		if err != nil {
			return fmt.Errorf("invalid gateway-url: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("invalid gateway-url scheme %q", u.Scheme)
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}

	if c.policy, err = fhevm.ParseAuthorizationPolicy(c.AuthorizationPolicy); err != nil {
		return err
	}

	if c.KMSPublicKey != "" {
		if c.kmsKey, err = hexutil.Decode(c.KMSPublicKey); err != nil {
			return fmt.Errorf("invalid kms-public-key: %w", err)
		}
	}
	if c.PrivateKey != "" {
		if c.privKey, err = hexutil.Decode(c.PrivateKey); err != nil {
			return fmt.Errorf("invalid private-key: %w", err)
		}
		if len(c.privKey) != 32 {
			return fmt.Errorf("invalid private-key: expected 32 bytes, got %d", len(c.privKey))
		}
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry-max-attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryInitialDelay < 0 || c.RetryMaxDelay < c.RetryInitialDelay {
		return fmt.Errorf("invalid retry delays: initial %s, max %s", c.RetryInitialDelay, c.RetryMaxDelay)
	}
	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		return errInvalidJitter
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("batch-concurrency must be at least 1, got %d", c.BatchConcurrency)
	}
	if c.PermitTTL <= 0 {
		return fmt.Errorf("permit-ttl must be positive, got %s", c.PermitTTL)
	}
	return nil
}

// Policy returns the parsed authorization policy. Valid after Validate.
func (c *Config) Policy() fhevm.AuthorizationPolicy {
	return c.policy
}

// KMSPublicKeyBytes returns the decoded KMS key, or nil when unset.
func (c *Config) KMSPublicKeyBytes() []byte {
	return c.kmsKey
}

// PrivateKeyBytes returns the decoded signing key, or nil when unset.
func (c *Config) PrivateKeyBytes() []byte {
	return c.privKey
}

// Domain returns the permit domain for the configured chain.
func (c *Config) Domain() signer.Domain {
	return signer.DefaultDomain(c.ChainID)
}

// RetryConfig returns the retry schedule for engine calls.
func (c *Config) RetryConfig() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = c.RetryMaxAttempts
	cfg.InitialDelay = c.RetryInitialDelay
	cfg.MaxDelay = c.RetryMaxDelay
	cfg.Jitter = c.RetryJitter
	return cfg
}

// PipelineOptions returns the pipeline options this configuration implies.
func (c *Config) PipelineOptions() []fhevm.PipelineOption {
	return []fhevm.PipelineOption{
		fhevm.WithPolicy(c.policy, c.Domain()),
		fhevm.WithConcurrency(c.BatchConcurrency),
		fhevm.WithTimeout(c.RequestTimeout),
	}
}
