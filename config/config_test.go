// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm"
)

func buildConfig(t *testing.T, args ...string) (Config, error) {
	t.Helper()

	fs := BuildFlagSet()
	require.NoError(t, fs.Parse(args))
	v, err := BuildViper(fs)
	require.NoError(t, err)
	return NewConfig(v)
}

func TestConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := buildConfig(t, "--engine", "memory")
	require.NoError(err)
	require.Equal("local", cfg.Network)
	require.Equal(uint64(31337), cfg.ChainID)
	require.Equal(3, cfg.RetryMaxAttempts)
	require.Equal(time.Second, cfg.RetryInitialDelay)
	require.Equal(fhevm.RequireGrant, cfg.Policy())
	require.Equal(uint64(31337), cfg.Domain().ChainID)
	require.Len(cfg.PipelineOptions(), 3)
}

func TestConfigFlags(t *testing.T) {
	require := require.New(t)

	cfg, err := buildConfig(t,
		"--network", "sepolia",
		"--gateway-url", "https://gateway.example.org",
		"--authorization-policy", "verify-signatures",
		"--retry-max-attempts", "5",
		"--retry-initial-delay", "250ms",
	)
	require.NoError(err)
	require.Equal(uint64(11155111), cfg.ChainID)
	require.Equal(fhevm.VerifySignatures, cfg.Policy())

	retry := cfg.RetryConfig()
	require.Equal(5, retry.MaxAttempts)
	require.Equal(250*time.Millisecond, retry.InitialDelay)
}

func TestConfigFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(os.WriteFile(path, []byte(`{
		"network": "zama-devnet",
		"engine": "memory",
		"chain-id": 77,
		"batch-concurrency": 4
	}`), 0o600))

	cfg, err := buildConfig(t, "--config-file", path)
	require.NoError(err)
	require.Equal("zama-devnet", cfg.Network)
	require.Equal(uint64(77), cfg.ChainID)
	require.Equal(4, cfg.BatchConcurrency)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "missing gateway url",
			args: []string{},
		},
		{
			name: "unknown network",
			args: []string{"--engine", "memory", "--network", "mainnet"},
		},
		{
			name: "unknown policy",
			args: []string{"--engine", "memory", "--authorization-policy", "trust-me"},
		},
		{
			name: "zero attempts",
			args: []string{"--engine", "memory", "--retry-max-attempts", "0"},
		},
		{
			name: "jitter too large",
			args: []string{"--engine", "memory", "--retry-jitter", "1.5"},
		},
		{
			name: "short private key",
			args: []string{"--engine", "memory", "--private-key", "0x1234"},
		},
		{
			name: "bad scheme",
			args: []string{"--gateway-url", "ftp://gateway.example.org"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := buildConfig(t, test.args...)
			require.Error(t, err)
		})
	}
}

func TestNetworksOrdered(t *testing.T) {
	list := Networks()
	require.Len(t, list, 3)
	require.Equal(t, "zama-devnet", list[0].Name)
	require.Equal(t, "local", list[1].Name)
	require.Equal(t, "sepolia", list[2].Name)
}
