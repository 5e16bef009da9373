// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIG_FILE"

	// Top-level configuration keys
	NetworkKey             = "network"
	ChainIDKey             = "chain-id"
	EngineKey              = "engine"
	GatewayURLKey          = "gateway-url"
	KMSPublicKeyKey        = "kms-public-key"
	PrivateKeyKey          = "private-key"
	AuthorizationPolicyKey = "authorization-policy"
	RetryMaxAttemptsKey    = "retry-max-attempts"
	RetryInitialDelayKey   = "retry-initial-delay"
	RetryMaxDelayKey       = "retry-max-delay"
	RetryJitterKey         = "retry-jitter"
	RequestTimeoutKey      = "request-timeout"
	BatchConcurrencyKey    = "batch-concurrency"
	PermitTTLKey           = "permit-ttl"
	PublicKeyTTLKey        = "public-key-ttl"
)
