// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"sort"
)

// Network is a known deployment.
type Network struct {
	Name        string
	DisplayName string
	ChainID     uint64
	RPCURL      string
	Explorer    string
}

var networks = map[string]Network{
	"sepolia": {
		Name:        "sepolia",
		DisplayName: "Sepolia Testnet",
		ChainID:     11155111,
		RPCURL:      "https://rpc.sepolia.org",
		Explorer:    "https://sepolia.etherscan.io",
	},
	"zama-devnet": {
		Name:        "zama-devnet",
		DisplayName: "Zama Devnet",
		ChainID:     9000,
		RPCURL:      "https://devnet.zama.ai",
		Explorer:    "https://explorer.zama.ai",
	},
	"local": {
		Name:        "local",
		DisplayName: "Local Hardhat",
		ChainID:     31337,
		RPCURL:      "http://localhost:8545",
	},
}

// LookupNetwork returns the preset called name.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q", name)
	}
	return n, nil
}

// Networks returns every preset ordered by chain id.
func Networks() []Network {
	list := make([]Network, 0, len(networks))
	for _, n := range networks {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ChainID < list[j].ChainID })
	return list
}
