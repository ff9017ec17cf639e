// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vaultLayoutJSON mirrors real build-tool output for a small contract with
// a packed first slot and a mapping.
const vaultLayoutJSON = `{
  "storage": [
    {
      "astId": 3,
      "contract": "src/Vault.sol:Vault",
      "label": "owner",
      "offset": 0,
      "slot": "0",
      "type": "t_address"
    },
    {
      "astId": 5,
      "contract": "src/Vault.sol:Vault",
      "label": "paused",
      "offset": 20,
      "slot": "0",
      "type": "t_bool"
    },
    {
      "astId": 7,
      "contract": "src/Vault.sol:Vault",
      "label": "totalDeposits",
      "offset": 0,
      "slot": "1",
      "type": "t_uint256"
    },
    {
      "astId": 11,
      "contract": "src/Vault.sol:Vault",
      "label": "balances",
      "offset": 0,
      "slot": "2",
      "type": "t_mapping(t_address,t_uint256)"
    }
  ],
  "types": {
    "t_address": {"encoding": "inplace", "label": "address", "numberOfBytes": "20"},
    "t_bool": {"encoding": "inplace", "label": "bool", "numberOfBytes": "1"},
    "t_uint256": {"encoding": "inplace", "label": "uint256", "numberOfBytes": "32"},
    "t_mapping(t_address,t_uint256)": {
      "encoding": "mapping",
      "key": "t_address",
      "label": "mapping(address => uint256)",
      "numberOfBytes": "32",
      "value": "t_uint256"
    }
  }
}`

// TestParseLayout verifies the happy path: entries resolve through the
// types table, slots decode from decimal strings, and declaration order
// is preserved.
func TestParseLayout(t *testing.T) {
	l, err := ParseLayout([]byte(vaultLayoutJSON))
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.Equal(t, "src/Vault.sol:Vault", l.Contract)
	require.Len(t, l.Variables, 4)

	assert.Equal(t, StorageVariable{
		Name:          "owner",
		TypeSignature: "t_address",
		ByteSize:      20,
		Slot:          0,
		Offset:        0,
	}, l.Variables[0])

	assert.Equal(t, "paused", l.Variables[1].Name)
	assert.Equal(t, uint64(20), l.Variables[1].Offset)

	assert.Equal(t, "balances", l.Variables[3].Name)
	assert.Equal(t, "t_mapping(t_address,t_uint256)", l.Variables[3].TypeSignature)
	assert.Equal(t, uint64(32), l.Variables[3].ByteSize)
	assert.Equal(t, uint64(2), l.Variables[3].Slot)
}

// TestParseLayoutEmpty verifies that a contract with no state variables
// decodes to a valid empty layout.
func TestParseLayoutEmpty(t *testing.T) {
	l, err := ParseLayout([]byte(`{"storage": [], "types": {}}`))
	require.NoError(t, err)
	assert.Empty(t, l.Variables)

	// Some tool versions emit null for the types table of an empty layout.
	l, err = ParseLayout([]byte(`{"storage": [], "types": null}`))
	require.NoError(t, err)
	assert.Empty(t, l.Variables)
}

// TestParseLayoutMalformed verifies that every decode defect surfaces as a
// MalformedLayoutError rather than a partial layout.
func TestParseLayoutMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "not json",
			data: `{"storage": [`,
		},
		{
			name: "missing label",
			data: `{"storage":[{"offset":0,"slot":"0","type":"t_address"}],"types":{"t_address":{"label":"address","numberOfBytes":"20"}}}`,
		},
		{
			name: "missing slot",
			data: `{"storage":[{"label":"owner","offset":0,"type":"t_address"}],"types":{"t_address":{"label":"address","numberOfBytes":"20"}}}`,
		},
		{
			name: "non numeric slot",
			data: `{"storage":[{"label":"owner","offset":0,"slot":"0x1","type":"t_address"}],"types":{"t_address":{"label":"address","numberOfBytes":"20"}}}`,
		},
		{
			name: "missing offset",
			data: `{"storage":[{"label":"owner","slot":"0","type":"t_address"}],"types":{"t_address":{"label":"address","numberOfBytes":"20"}}}`,
		},
		{
			name: "type token not in table",
			data: `{"storage":[{"label":"owner","offset":0,"slot":"0","type":"t_address"}],"types":{}}`,
		},
		{
			name: "non numeric byte size",
			data: `{"storage":[{"label":"owner","offset":0,"slot":"0","type":"t_address"}],"types":{"t_address":{"label":"address","numberOfBytes":"twenty"}}}`,
		},
		{
			name: "overlapping entries",
			data: `{"storage":[
				{"label":"a","offset":0,"slot":"0","type":"t_uint256"},
				{"label":"b","offset":16,"slot":"0","type":"t_uint128"}
			],"types":{
				"t_uint256":{"label":"uint256","numberOfBytes":"32"},
				"t_uint128":{"label":"uint128","numberOfBytes":"16"}
			}}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := ParseLayout([]byte(tc.data))
			require.Error(t, err)
			assert.Nil(t, l)
			var malformed *MalformedLayoutError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

// TestParseLayoutFile verifies the file path wrapper, including the error
// for a missing file.
func TestParseLayoutFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	require.NoError(t, os.WriteFile(path, []byte(vaultLayoutJSON), 0o644))

	l, err := ParseLayoutFile(path)
	require.NoError(t, err)
	assert.Len(t, l.Variables, 4)

	_, err = ParseLayoutFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
