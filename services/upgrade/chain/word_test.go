// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordFromHex(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantHex string
		wantErr bool
	}{
		{
			name:    "full width word",
			in:      "0x" + strings.Repeat("00", 31) + "2a",
			wantHex: "0x" + strings.Repeat("00", 31) + "2a",
		},
		{
			name:    "short quantity left pads",
			in:      "0x2a",
			wantHex: "0x" + strings.Repeat("00", 31) + "2a",
		},
		{
			name:    "odd length quantity",
			in:      "0xabc",
			wantHex: "0x" + strings.Repeat("00", 30) + "0abc",
		},
		{
			name:    "zero word",
			in:      "0x0",
			wantHex: "0x" + strings.Repeat("00", 32),
		},
		{
			name:    "whitespace tolerated",
			in:      "  0x01  ",
			wantHex: "0x" + strings.Repeat("00", 31) + "01",
		},
		{
			name:    "empty after prefix",
			in:      "0x",
			wantErr: true,
		},
		{
			name:    "not hex",
			in:      "0xzz",
			wantErr: true,
		},
		{
			name:    "longer than a slot",
			in:      "0x" + strings.Repeat("ff", 33),
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, err := WordFromHex(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantHex, w.Hex())
		})
	}
}

func TestWordIsZero(t *testing.T) {
	var zero Word
	assert.True(t, zero.IsZero())

	w, err := WordFromHex("0x01")
	require.NoError(t, err)
	assert.False(t, w.IsZero())
}

func TestWordBytesIsACopy(t *testing.T) {
	w, err := WordFromHex("0xff")
	require.NoError(t, err)

	b := w.Bytes()
	b[31] = 0x00
	assert.Equal(t, byte(0xff), w[31], "mutating the returned slice must not touch the word")
}
