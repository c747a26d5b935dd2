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
	"errors"
	"fmt"

	"github.com/butok/mcuboot/flash"
)

// TLV info record magics. A trailer is either
//
//	[prot-info][protected TLVs][info][TLVs]
//
// when the header declares a protected TLV area, or
//
//	[info][TLVs]
//
// when it does not.
const (
	TLVInfoMagic     = 0x6907
	TLVProtInfoMagic = 0x6908
)

// TLVInfoSize is the encoded size of a TLV info record (magic + total
// length, both 16 bit).
const TLVInfoSize = 4

// tlvHdrSize is the encoded size of the type and length fields preceding
// each TLV payload.
const tlvHdrSize = 4

// TLV record types.
const (
	TLVKeyHash    = 0x01
	TLVPubKey     = 0x02
	TLVSHA256     = 0x10
	TLVSHA384     = 0x11
	TLVSHA512     = 0x12
	TLVRSA2048PSS = 0x20
	TLVECDSASig   = 0x22
	TLVRSA3072PSS = 0x23
	TLVED25519    = 0x24
	TLVEncRSA2048 = 0x30
	TLVEncKW      = 0x31
	TLVEncEC256   = 0x32
	TLVEncX25519  = 0x33
	TLVDependency = 0x40
	TLVSecCnt     = 0x50
	TLVBootRecord = 0x60

	// TLVAny matches every record type when used as an iterator filter.
	TLVAny = 0xffff
)

var tlvTypeNames = map[uint16]string{
	TLVKeyHash:    "KEYHASH",
	TLVPubKey:     "PUBKEY",
	TLVSHA256:     "SHA256",
	TLVSHA384:     "SHA384",
	TLVSHA512:     "SHA512",
	TLVRSA2048PSS: "RSA2048_PSS",
	TLVECDSASig:   "ECDSA_SIG",
	TLVRSA3072PSS: "RSA3072_PSS",
	TLVED25519:    "ED25519",
	TLVEncRSA2048: "ENC_RSA2048",
	TLVEncKW:      "ENC_KW",
	TLVEncEC256:   "ENC_EC256",
	TLVEncX25519:  "ENC_X25519",
	TLVDependency: "DEPENDENCY",
	TLVSecCnt:     "SEC_CNT",
	TLVBootRecord: "BOOT_RECORD",
}

// TLVTypeName returns a human readable name for a TLV record type.
func TLVTypeName(typ uint16) string {
	if n, ok := tlvTypeNames[typ]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%#04x)", typ)
}

// Errors returned by the TLV iterator.
var (
	// ErrInvalidArgument is returned when a required input is missing.
	ErrInvalidArgument = errors.New("image: invalid argument")
	// ErrInvalidState is returned when operating on an iterator which
	// was never initialized or whose scan failed.
	ErrInvalidState = errors.New("image: invalid TLV iterator state")
	// ErrCorruptTrailer is returned when the trailer structure does not
	// match the header, indicating a malformed or tampered image.
	ErrCorruptTrailer = errors.New("image: corrupt TLV trailer")
)

// TLV locates one record found by a TLVIter. The payload occupies
// [Off, Off+Len) of the area being scanned.
type TLV struct {
	Type uint16
	Off  uint32
	Len  uint16
}

// TraceFunc receives best-effort diagnostic messages from an iterator. It
// must not be assumed to run for every event and has no influence on the
// scan itself.
type TraceFunc func(format string, args ...any)

type iterState int

const (
	stateUninit iterState = iota
	stateScanning
	stateExhausted
	stateFailed
)

// TLVIter walks the TLV records of an image trailer in storage order,
// protected records first, without holding more than one record header in
// memory at a time.
//
// An iterator is not safe for concurrent use: Next mutates the cursor in
// place. Protected may be called concurrently with other Protected calls
// only.
type TLVIter struct {
	hdr  *Header
	area flash.Area
	typ  uint16
	prot bool

	state    iterState
	startOff uint32
	protEnd  uint32
	tlvEnd   uint32
	tlvOff   uint32
	trace    TraceFunc
}

// TLVIterOpt adjusts the behavior of NewTLVIter.
type TLVIterOpt func(*TLVIter)

// WithTrace directs iterator diagnostics to f.
func WithTrace(f TraceFunc) TLVIterOpt {
	return func(it *TLVIter) {
		it.trace = f
	}
}

// WithStartOffset shifts the trailer start by off bytes. Used when the
// swap mechanism relocates images by an offset instead of moving them
// between slots.
func WithStartOffset(off uint32) TLVIterOpt {
	return func(it *TLVIter) {
		it.startOff = off
	}
}

// NewTLVIter validates the trailer structure of the image described by hdr
// and returns an iterator over its TLV records.
//
// typ selects the record type to match, or TLVAny for all records. With
// prot set, the iterator only yields records from the protected TLV area
// and reports exhaustion at its end.
//
// The header and area are borrowed for the lifetime of the iterator.
func NewTLVIter(hdr *Header, area flash.Area, typ uint16, prot bool, opts ...TLVIterOpt) (*TLVIter, error) {
	if hdr == nil {
		return nil, fmt.Errorf("%w: nil header", ErrInvalidArgument)
	}
	if area == nil {
		return nil, fmt.Errorf("%w: nil flash area", ErrInvalidArgument)
	}

	it := &TLVIter{
		hdr:  hdr,
		area: area,
		typ:  typ,
		prot: prot,
	}
	for _, opt := range opts {
		opt(it)
	}
	it.tracef("tlv: begin type %#04x prot %t", typ, prot)

	off := hdr.TLVOff() + it.startOff

	magic, total, err := readTLVInfo(area, off)
	if err != nil {
		return nil, fmt.Errorf("reading TLV info at %#x: %w", off, err)
	}

	if magic == TLVProtInfoMagic {
		if hdr.ProtectTLVSize != total {
			return nil, fmt.Errorf("%w: protected TLV size %d, header declares %d", ErrCorruptTrailer, total, hdr.ProtectTLVSize)
		}
		infoOff := off + uint32(total)
		magic, total, err = readTLVInfo(area, infoOff)
		if err != nil {
			return nil, fmt.Errorf("reading TLV info at %#x: %w", infoOff, err)
		}
	} else if hdr.ProtectTLVSize != 0 {
		return nil, fmt.Errorf("%w: header declares %d byte protected TLV area but trailer has none", ErrCorruptTrailer, hdr.ProtectTLVSize)
	}
	if magic != TLVInfoMagic {
		return nil, fmt.Errorf("%w: bad TLV info magic %#04x", ErrCorruptTrailer, magic)
	}

	it.protEnd = off + uint32(hdr.ProtectTLVSize)
	it.tlvEnd = it.protEnd + uint32(total)
	it.tlvOff = off + TLVInfoSize
	it.state = stateScanning
	return it, nil
}

// Next advances to the next record matching the iterator's type filter.
// It returns the record and true on a match, or ok == false once no
// further records match. After an error the iterator is unusable and
// subsequent calls return ErrInvalidState.
func (it *TLVIter) Next() (tlv TLV, ok bool, err error) {
	switch {
	case it == nil || it.state == stateUninit:
		return TLV{}, false, fmt.Errorf("%w: iterator not initialized", ErrInvalidState)
	case it.state == stateFailed:
		return TLV{}, false, fmt.Errorf("%w: previous scan failed", ErrInvalidState)
	case it.state == stateExhausted:
		return TLV{}, false, nil
	}

	it.tracef("tlv: next type %#04x from %#x to %#x", it.typ, it.tlvOff, it.tlvEnd)

	for it.tlvOff < it.tlvEnd {
		// Crossing from the protected area into the general one:
		// step over the second info record.
		if it.hdr.ProtectTLVSize > 0 && it.tlvOff == it.protEnd {
			it.tlvOff += TLVInfoSize
			continue
		}

		// No more records in the protected area. Checked before the
		// read below so that a protected-only scan never touches the
		// general area.
		if it.prot && it.tlvOff >= it.protEnd {
			it.tracef("tlv: protected TLV %#04x not found", it.typ)
			it.state = stateExhausted
			return TLV{}, false, nil
		}

		typ, length, rerr := readTLVHdr(it.area, it.tlvOff)
		if rerr != nil {
			it.state = stateFailed
			return TLV{}, false, fmt.Errorf("reading TLV header at %#x: %w", it.tlvOff, rerr)
		}

		if it.typ == TLVAny || typ == it.typ {
			tlv = TLV{
				Type: typ,
				Off:  it.tlvOff + tlvHdrSize,
				Len:  length,
			}
			it.tlvOff += tlvHdrSize + uint32(length)
			it.tracef("tlv: found %#04x at %#x (%d bytes)", tlv.Type, tlv.Off, tlv.Len)
			return tlv, true, nil
		}

		it.tlvOff += tlvHdrSize + uint32(length)
	}

	it.tracef("tlv: TLV %#04x not found", it.typ)
	it.state = stateExhausted
	return TLV{}, false, nil
}

// Protected reports whether a payload offset previously returned by Next
// lies within the protected TLV area.
//
// The comparison is inclusive of the area end: a zero length record
// closing the protected area has its empty payload at the boundary and
// still counts as protected. General-area payloads always start past the
// second info record, so they can never alias the boundary.
func (it *TLVIter) Protected(off uint32) (bool, error) {
	if it == nil || it.state == stateUninit {
		return false, fmt.Errorf("%w: iterator not initialized", ErrInvalidState)
	}
	return off <= it.protEnd, nil
}

func (it *TLVIter) tracef(format string, args ...any) {
	if it.trace != nil {
		it.trace(format, args...)
	}
}

// readTLVInfo decodes a TLV info record (magic, total area length).
func readTLVInfo(area flash.Area, off uint32) (magic, total uint16, err error) {
	b, err := area.Read(off, TLVInfoSize)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint16(b[0:2]), binary.LittleEndian.Uint16(b[2:4]), nil
}

// readTLVHdr decodes the type and payload length of a single record.
func readTLVHdr(area flash.Area, off uint32) (typ, length uint16, err error) {
	b, err := area.Read(off, tlvHdrSize)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint16(b[0:2]), binary.LittleEndian.Uint16(b[2:4]), nil
}
