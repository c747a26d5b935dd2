// Copyright 2025 The mcuboot authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package image

import (
	"encoding/binary"
	"fmt"
	"math"
)

type tlvRec struct {
	typ     uint16
	payload []byte
}

// TrailerBuilder assembles a TLV trailer in the on-storage encoding, the
// job normally done by the image signing tool. Records are emitted in the
// order they were added, protected records first.
type TrailerBuilder struct {
	prot  []tlvRec
	plain []tlvRec
}

// AddProtected appends a record to the protected TLV area.
func (b *TrailerBuilder) AddProtected(typ uint16, payload []byte) {
	b.prot = append(b.prot, tlvRec{typ: typ, payload: payload})
}

// Add appends a record to the general TLV area.
func (b *TrailerBuilder) Add(typ uint16, payload []byte) {
	b.plain = append(b.plain, tlvRec{typ: typ, payload: payload})
}

// ProtectedSize returns the value the image header's protected TLV size
// field must carry for this trailer: the encoded size of the protected
// area including its info record, or zero if no protected records were
// added.
func (b *TrailerBuilder) ProtectedSize() (uint16, error) {
	if len(b.prot) == 0 {
		return 0, nil
	}
	return areaSize(b.prot)
}

// Bytes encodes the trailer.
func (b *TrailerBuilder) Bytes() ([]byte, error) {
	var out []byte

	if len(b.prot) > 0 {
		size, err := b.ProtectedSize()
		if err != nil {
			return nil, err
		}
		out = appendInfo(out, TLVProtInfoMagic, size)
		for _, r := range b.prot {
			out = appendRec(out, r)
		}
	}

	size, err := areaSize(b.plain)
	if err != nil {
		return nil, err
	}
	out = appendInfo(out, TLVInfoMagic, size)
	for _, r := range b.plain {
		out = appendRec(out, r)
	}

	return out, nil
}

// areaSize returns the encoded size of one TLV area: its info record plus
// every record header and payload.
func areaSize(recs []tlvRec) (uint16, error) {
	size := uint64(TLVInfoSize)
	for _, r := range recs {
		if len(r.payload) > math.MaxUint16 {
			return 0, fmt.Errorf("TLV %#04x payload too large (%d bytes)", r.typ, len(r.payload))
		}
		size += tlvHdrSize + uint64(len(r.payload))
	}
	if size > math.MaxUint16 {
		return 0, fmt.Errorf("TLV area too large (%d bytes)", size)
	}
	return uint16(size), nil
}

func appendInfo(out []byte, magic, total uint16) []byte {
	out = binary.LittleEndian.AppendUint16(out, magic)
	return binary.LittleEndian.AppendUint16(out, total)
}

func appendRec(out []byte, r tlvRec) []byte {
	out = binary.LittleEndian.AppendUint16(out, r.typ)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(r.payload)))
	return append(out, r.payload...)
}
