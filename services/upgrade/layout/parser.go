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
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// The wire schema is owned by the build tool (`forge inspect <contract>
// storage-layout --json`): a `storage` array in declaration order plus a
// `types` table resolving each type token to its byte size. Slots and byte
// sizes arrive as decimal strings. Unknown extra fields are tolerated;
// missing required ones are not.

type wireLayout struct {
	Storage []wireStorageEntry       `json:"storage"`
	Types   map[string]wireTypeEntry `json:"types"`
}

type wireStorageEntry struct {
	Contract string  `json:"contract"`
	Label    *string `json:"label"`
	Offset   *uint64 `json:"offset"`
	Slot     *string `json:"slot"`
	Type     *string `json:"type"`
}

type wireTypeEntry struct {
	Encoding      string `json:"encoding"`
	Label         string `json:"label"`
	NumberOfBytes string `json:"numberOfBytes"`
}

// ParseLayout decodes build-tool layout JSON into a validated StorageLayout.
//
// Every decode failure is a *MalformedLayoutError: JSON that is not the
// layout schema, entries missing label/slot/offset/type, non-numeric slot
// or size strings, or a type token absent from the types table. The
// returned layout has passed Validate.
func ParseLayout(data []byte) (*StorageLayout, error) {
	var w wireLayout
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &MalformedLayoutError{Reason: "not valid layout JSON", Err: err}
	}

	out := &StorageLayout{Variables: make([]StorageVariable, 0, len(w.Storage))}
	for i, entry := range w.Storage {
		if out.Contract == "" && entry.Contract != "" {
			out.Contract = entry.Contract
		}
		v, err := decodeEntry(i, entry, w.Types)
		if err != nil {
			if m, ok := err.(*MalformedLayoutError); ok && m.Contract == "" {
				m.Contract = out.Contract
			}
			return nil, err
		}
		out.Variables = append(out.Variables, v)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseLayoutFile reads and decodes a layout JSON file.
func ParseLayoutFile(path string) (*StorageLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout file: %w", err)
	}
	return ParseLayout(data)
}

func decodeEntry(index int, entry wireStorageEntry, types map[string]wireTypeEntry) (StorageVariable, error) {
	var v StorageVariable

	if entry.Label == nil || *entry.Label == "" {
		return v, &MalformedLayoutError{Reason: fmt.Sprintf("storage entry %d has no label", index)}
	}
	v.Name = *entry.Label

	if entry.Type == nil || *entry.Type == "" {
		return v, &MalformedLayoutError{Variable: v.Name, Reason: "storage entry has no type token"}
	}
	v.TypeSignature = *entry.Type

	if entry.Slot == nil {
		return v, &MalformedLayoutError{Variable: v.Name, Reason: "storage entry has no slot"}
	}
	slot, err := strconv.ParseUint(*entry.Slot, 10, 64)
	if err != nil {
		return v, &MalformedLayoutError{Variable: v.Name, Reason: fmt.Sprintf("slot %q is not a decimal number", *entry.Slot), Err: err}
	}
	v.Slot = slot

	if entry.Offset == nil {
		return v, &MalformedLayoutError{Variable: v.Name, Reason: "storage entry has no offset"}
	}
	v.Offset = *entry.Offset

	typeInfo, ok := types[v.TypeSignature]
	if !ok {
		return v, &MalformedLayoutError{Variable: v.Name, Reason: fmt.Sprintf("type token %q not in types table", v.TypeSignature)}
	}
	size, err := strconv.ParseUint(typeInfo.NumberOfBytes, 10, 64)
	if err != nil {
		return v, &MalformedLayoutError{Variable: v.Name, Reason: fmt.Sprintf("type %q has non-numeric byte size %q", v.TypeSignature, typeInfo.NumberOfBytes), Err: err}
	}
	v.ByteSize = size

	return v, nil
}
