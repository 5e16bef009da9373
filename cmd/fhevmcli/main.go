// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/config"
	"github.com/luxfi/fhevm/engine"
	"github.com/luxfi/fhevm/signer"
	"github.com/luxfi/fhevm/types"
	"github.com/luxfi/fhevm/utils"
)

var (
	version   = "dev"
	buildDate = "unknown"

	errInvalidInput = errors.New("invalid input")
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fhevmcli",
	Short: "Encrypted value lifecycle tools",
	Long: `fhevmcli manages handles to encrypted values: it formats and parses
handles, validates addresses and permits, and decrypts through a gateway.

Every flag may also be given as an environment variable or in a JSON config file.`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(formatHandleCmd)
	rootCmd.AddCommand(parseHandleCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(publicKeyCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(demoCmd)
}

var formatHandleCmd = &cobra.Command{
	Use:   "format-handle <value>",
	Short: "Print a handle in canonical form",
	Long:  `Accepts a decimal or 0x-prefixed hex handle and prints it as 0x followed by 64 hex digits.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := types.ParseHandle(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), types.FormatHandle(h.Int()))
		return nil
	},
}

var parseHandleCmd = &cobra.Command{
	Use:   "parse-handle <handle>",
	Short: "Describe a handle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := types.ParseHandle(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Handle:    %s\n", h)
		fmt.Fprintf(out, "Decimal:   %s\n", h.Int().Dec())
		fmt.Fprintf(out, "Encrypted: %t\n", h.IsEncrypted())
		if t := types.FheType(h[types.HandleLen-2]); h.IsEncrypted() && t.Valid() {
			fmt.Fprintf(out, "Type:      %s\n", t)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check address and signature formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		signature, _ := cmd.Flags().GetString("signature")
		if address == "" && signature == "" {
			return fmt.Errorf("nothing to validate: pass --address or --signature")
		}

		out := cmd.OutOrStdout()
		var invalid bool
		if address != "" {
			ok := fhevm.IsValidAddress(address)
			invalid = invalid || !ok
			fmt.Fprintf(out, "Address %s: %s\n", fhevm.TruncateAddress(address, 4), validity(ok))
		}
		if signature != "" {
			ok := fhevm.IsValidSignature(signature)
			invalid = invalid || !ok
			fmt.Fprintf(out, "Signature: %s\n", validity(ok))
		}
		if invalid {
			return errInvalidInput
		}
		return nil
	},
}

func validity(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List network presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCHAIN ID\tRPC\tEXPLORER")
		for _, n := range config.Networks() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", n.Name, n.ChainID, n.RPCURL, n.Explorer)
		}
		return w.Flush()
	},
}

var publicKeyCmd = &cobra.Command{
	Use:   "public-key",
	Short: "Fetch the network public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		key, err := client.PublicKey(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(key))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <handle>",
	Short: "Publicly decrypt a handle through the gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, _ := cmd.Flags().GetString("contract")
		typeName, _ := cmd.Flags().GetString("type")

		h, err := types.ParseHandle(args[0])
		if err != nil {
			return err
		}
		t, err := types.ParseFheType(typeName)
		if err != nil {
			return err
		}
		client, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := client.Registry().Import(h, t, nil); err != nil {
			return err
		}

		result, err := client.PublicDecrypt(cmd.Context(), h, contract)
		if err != nil {
			return err
		}
		if !result.Success {
			return result.Err()
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Value.Dec())
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an encrypt, permit and decrypt round trip on the in-memory engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetUint64("value")
		contract, _ := cmd.Flags().GetString("contract")

		logger := log.NewLogger("fhevmcli")
		s, err := signer.GenerateLocalSigner()
		if err != nil {
			return err
		}
		domain := signer.DefaultDomain(31337)
		client := fhevm.NewClient(logger, engine.NewMemory(s, domain),
			fhevm.WithDomain(domain),
			fhevm.WithClientRetry(utils.WithMaxAttempts(1)),
			fhevm.WithPipelineOptions(fhevm.WithPolicy(fhevm.VerifySignatures, domain)),
		)
		return runDemo(cmd.Context(), cmd, client, s.Address().Hex(), contract, value)
	},
}

func runDemo(ctx context.Context, cmd *cobra.Command, client *fhevm.Client, user, contract string, value uint64) error {
	out := cmd.OutOrStdout()

	h, err := client.Encrypt(ctx, uint256.NewInt(value), types.Uint64)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Encrypted %d as %s\n", value, h)

	sig, err := client.GeneratePermit(ctx, contract, user, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Permit for %s: %s\n", fhevm.TruncateAddress(user, 4), fhevm.FormatSignature(sig))

	result, err := client.UserDecrypt(ctx, h, contract, user, sig)
	if err != nil {
		return err
	}
	if !result.Success {
		return result.Err()
	}
	fmt.Fprintf(out, "Decrypted: %s\n", result.Value.Dec())

	revoked, err := client.Disconnect(user)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Revoked %d permit(s)\n", revoked)
	return nil
}

// newClient builds a session from flags, environment and config file.
func newClient(cmd *cobra.Command) (*fhevm.Client, config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return nil, cfg, err
	}

	logger := log.NewLogger("fhevmcli")
	var s *signer.LocalSigner
	if key := cfg.PrivateKeyBytes(); key != nil {
		s, err = signer.LocalSignerFromBytes(key)
	} else {
		s, err = signer.GenerateLocalSigner()
	}
	if err != nil {
		return nil, cfg, err
	}

	var eng engine.Engine
	switch cfg.Engine {
	case config.EngineMemory:
		eng = engine.NewMemory(s, cfg.Domain())
	default:
		eng, err = engine.NewGateway(logger, engine.GatewayConfig{
			URL:            cfg.GatewayURL,
			KMSPublicKey:   cfg.KMSPublicKeyBytes(),
			PublicKeyTTL:   cfg.PublicKeyTTL,
			RequestTimeout: cfg.RequestTimeout,
		}, s, cfg.Domain())
		if err != nil {
			return nil, cfg, err
		}
	}

	client := fhevm.NewClient(logger, eng,
		fhevm.WithDomain(cfg.Domain()),
		fhevm.WithClientRetry(utils.WithConfig(cfg.RetryConfig())),
		fhevm.WithPipelineOptions(cfg.PipelineOptions()...),
	)
	return client, cfg, nil
}

func init() {
	validateCmd.Flags().StringP("address", "a", "", "Address to check")
	validateCmd.Flags().StringP("signature", "s", "", "Signature to check")

	decryptCmd.Flags().StringP("contract", "c", "", "Contract that made the handle publicly decryptable")
	decryptCmd.Flags().StringP("type", "t", "uint256", "Declared type of the handle")
	decryptCmd.MarkFlagRequired("contract")

	demoCmd.Flags().Uint64P("value", "v", 42, "Plaintext to encrypt")
	demoCmd.Flags().StringP("contract", "c", "0x5FbDB2315678afecb367f032d93F642f64180aa3", "Contract the permit is bound to")
}
