// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/fhevm/utils"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildFlagSet declares every configuration key as a flag.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fhevm", pflag.ContinueOnError)
	AddFlags(fs)
	return fs
}

// AddFlags declares every configuration key on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Specifies the JSON configuration file")
	fs.String(NetworkKey, defaultNetwork, "Network preset (sepolia, zama-devnet, local)")
	fs.Uint64(ChainIDKey, 0, "Chain id overriding the network preset")
	fs.String(EngineKey, defaultEngine, "Engine backend (gateway, memory)")
	fs.String(GatewayURLKey, "", "Gateway JSON-RPC endpoint")
	fs.String(KMSPublicKeyKey, "", "Hex BLS key decryption responses must be signed with")
	fs.String(PrivateKeyKey, "", "Hex secp256k1 key used to sign permits")
	fs.String(AuthorizationPolicyKey, defaultAuthorizationPolicy, "require-grant, signature-only or verify-signatures")
	fs.Int(RetryMaxAttemptsKey, utils.DefaultMaxAttempts, "Attempts per engine call, including the first")
	fs.Duration(RetryInitialDelayKey, utils.DefaultInitialDelay, "Delay after the first failed attempt")
	fs.Duration(RetryMaxDelayKey, utils.DefaultMaxDelay, "Upper bound on a single retry delay")
	fs.Float64(RetryJitterKey, 0, "Fraction by which retry delays are randomized")
	fs.Duration(RequestTimeoutKey, defaultRequestTimeout, "Deadline for one decryption, retries included")
	fs.Int(BatchConcurrencyKey, defaultBatchConcurrency, "Decryptions a batch dispatches at once")
	fs.Duration(PermitTTLKey, defaultPermitTTL, "Lifetime of generated permits")
	fs.Duration(PublicKeyTTLKey, defaultPublicKeyTTL, "How long the network public key is cached")
}

// BuildViper binds fs and the environment. All config keys may be provided via
// flag, environment variable or the optional config file.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	filename := v.GetString(ConfigFileKey)
	if filename == "" {
		filename = os.Getenv(ConfigFileEnvKey)
	}
	if filename == "" {
		return v, nil
	}
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(NetworkKey, defaultNetwork)
	v.SetDefault(EngineKey, defaultEngine)
	v.SetDefault(AuthorizationPolicyKey, defaultAuthorizationPolicy)
	v.SetDefault(RetryMaxAttemptsKey, utils.DefaultMaxAttempts)
	v.SetDefault(RetryInitialDelayKey, utils.DefaultInitialDelay)
	v.SetDefault(RetryMaxDelayKey, utils.DefaultMaxDelay)
	v.SetDefault(RequestTimeoutKey, defaultRequestTimeout)
	v.SetDefault(BatchConcurrencyKey, defaultBatchConcurrency)
	v.SetDefault(PermitTTLKey, defaultPermitTTL)
	v.SetDefault(PublicKeyTTLKey, defaultPublicKeyTTL)
}

// BuildConfig constructs the session config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

// DisplayUsageText prints where configuration can come from.
func DisplayUsageText() {
	fmt.Printf(
		"Usage: fhevmcli [command] --%s path/to/config.json [flags]\n"+
			"Every flag may also be set with an environment variable, e.g. %s.\n",
		ConfigFileKey, strings.ToUpper(strings.ReplaceAll(GatewayURLKey, "-", "_")),
	)
}
