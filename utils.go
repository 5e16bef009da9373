// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/fhevm/types"
)

var errOverflow = errors.New("addition would overflow")

// AddUint64 adds two uint64 values and returns an error if overflow
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, errOverflow
	}
	return a + b, nil
}

// ComputeHash256Array computes SHA256 hash
func ComputeHash256Array(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// requestID derives the id a decryption request is logged under.
func requestID(seq uint64, h types.Handle, contract, user common.Address) ids.ID {
	buf := make([]byte, 0, 8+types.HandleLen+2*common.AddressLength)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = append(buf, h[:]...)
	buf = append(buf, contract[:]...)
	buf = append(buf, user[:]...)
	return ids.ID(ComputeHash256Array(buf))
}
