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
	"encoding/hex"
	"fmt"
	"strings"
)

// Word is one 32-byte EVM storage slot value.
type Word [32]byte

// Hex renders the word as 0x-prefixed lowercase hex, always 64 digits.
func (w Word) Hex() string {
	return "0x" + hex.EncodeToString(w[:])
}

// IsZero reports whether every byte is zero.
func (w Word) IsZero() bool {
	return w == Word{}
}

// Bytes returns a copy of the word.
func (w Word) Bytes() []byte {
	out := make([]byte, len(w))
	copy(out, w[:])
	return out
}

// WordFromHex parses a 0x-prefixed hex quantity into a left-padded word.
// Nodes answer eth_getStorageAt with the full 64 digits, but short
// quantities are accepted and padded.
func WordFromHex(s string) (Word, error) {
	var w Word
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return w, fmt.Errorf("empty storage word %q", s)
	}
	if len(trimmed)%2 == 1 {
		trimmed = "0" + trimmed
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return w, fmt.Errorf("invalid storage word %q: %w", s, err)
	}
	if len(raw) > len(w) {
		return w, fmt.Errorf("storage word %q longer than 32 bytes", s)
	}
	copy(w[len(w)-len(raw):], raw)
	return w, nil
}
