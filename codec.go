// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"fmt"

	"github.com/luxfi/geth/rlp"
)

// CodecVersion is the only snapshot encoding version understood.
const CodecVersion = 0

// CodecImpl serializes persisted session state with RLP.
type CodecImpl struct{}

// Codec is the default codec instance
var Codec = &CodecImpl{}

// Marshal serializes the value, prefixing the encoding version.
func (c *CodecImpl) Marshal(version uint16, v interface{}) ([]byte, error) {
	body, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes([]interface{}{version, rlp.RawValue(body)})
}

// Unmarshal deserializes the bytes into v and returns the encoding version.
func (c *CodecImpl) Unmarshal(b []byte, v interface{}) (uint16, error) {
	var envelope struct {
		Version uint16
		Body    rlp.RawValue
	}
	if err := rlp.DecodeBytes(b, &envelope); err != nil {
		return 0, err
	}
	if envelope.Version != CodecVersion {
		return envelope.Version, fmt.Errorf("unsupported codec version %d", envelope.Version)
	}
	return envelope.Version, rlp.DecodeBytes(envelope.Body, v)
}
