// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm/engine"
	"github.com/luxfi/fhevm/types"
	"github.com/luxfi/fhevm/utils"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{err: nil, kind: KindNone, retryable: true},
		{err: fmt.Errorf("wrapped: %w", ErrInvalidAddress), kind: KindValidation},
		{err: types.ErrValueOutOfRange, kind: KindValidation},
		{err: engine.ErrBadRequest, kind: KindValidation},
		{err: ErrHandleNotConfirmed, kind: KindRegistry},
		{err: ErrUnauthorized, kind: KindPermission},
		{err: context.Canceled, kind: KindCancelled},
		{err: context.DeadlineExceeded, kind: KindCancelled},
		{err: engine.ErrEngineUnavailable, kind: KindNetwork, retryable: true},
		{err: fmt.Errorf("%w: %w", utils.ErrRetryExhausted, engine.ErrEngineUnavailable), kind: KindNetwork, retryable: true},
		{err: engine.ErrInvalidKMSSignature, kind: KindInternal},
		{err: errors.New("boom"), kind: KindInternal, retryable: true},
	}
	for _, test := range tests {
		require.Equal(t, test.kind, Classify(test.err), "%v", test.err)
		if test.err != nil {
			require.Equal(t, test.retryable, IsRetryable(test.err), "%v", test.err)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindNetwork, Message: "engine unavailable"}
	require.Equal(t, "fhevm network error: engine unavailable", err.Error())
}
