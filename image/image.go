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

// Package image implements the MCUboot image format: the fixed image
// header and the TLV trailer appended to the image payload by the signing
// tool. All multi-byte fields are little-endian.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the value of the ih_magic field of a valid image header.
const Magic = 0x96f3b83d

// HeaderSize is the size in bytes of the fixed image header fields.
// Header.HdrSize may be larger, in which case the fields are followed by
// padding up to that size.
const HeaderSize = 32

// Image header flags.
const (
	FlagPIC             = 0x00000001
	FlagEncryptedAES128 = 0x00000004
	FlagEncryptedAES256 = 0x00000008
	FlagNonBootable     = 0x00000010
	FlagRAMLoad         = 0x00000020
	FlagROMFixed        = 0x00000040
)

// Version is an image version number, ordered by major, minor, revision
// and finally build number.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	Build    uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Revision, v.Build)
}

// Compare returns -1, 0 or 1 if v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	a := [4]uint32{uint32(v.Major), uint32(v.Minor), uint32(v.Revision), v.Build}
	b := [4]uint32{uint32(o.Major), uint32(o.Minor), uint32(o.Revision), o.Build}
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// Header is the fixed header at the start of every image.
//
// The trailer with the image TLVs starts at HdrSize+ImgSize; the first
// ProtectTLVSize bytes of the trailer (if any) are covered by the image
// signature.
type Header struct {
	// LoadAddr is the load address for FlagRAMLoad or FlagROMFixed images.
	LoadAddr uint32
	// HdrSize is the full size of the header on storage, including padding.
	HdrSize uint16
	// ProtectTLVSize is the size in bytes of the protected TLV area,
	// including its info header, or zero if the image has none.
	ProtectTLVSize uint16
	// ImgSize is the size in bytes of the image payload.
	ImgSize uint32
	// Flags holds the Flag* bits.
	Flags uint32
	// Ver is the image version.
	Ver Version
}

// ErrBadMagic is returned when parsing bytes which do not start with a
// valid image header magic.
var ErrBadMagic = errors.New("image: bad header magic")

// ParseHeader decodes an image header from the start of b.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("image: header truncated: %d bytes, need %d", len(b), HeaderSize)
	}
	if m := binary.LittleEndian.Uint32(b[0:4]); m != Magic {
		return nil, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}
	hdr := &Header{
		LoadAddr:       binary.LittleEndian.Uint32(b[4:8]),
		HdrSize:        binary.LittleEndian.Uint16(b[8:10]),
		ProtectTLVSize: binary.LittleEndian.Uint16(b[10:12]),
		ImgSize:        binary.LittleEndian.Uint32(b[12:16]),
		Flags:          binary.LittleEndian.Uint32(b[16:20]),
		Ver: Version{
			Major:    b[20],
			Minor:    b[21],
			Revision: binary.LittleEndian.Uint16(b[22:24]),
			Build:    binary.LittleEndian.Uint32(b[24:28]),
		},
	}
	if hdr.HdrSize < HeaderSize {
		return nil, fmt.Errorf("image: header size %d smaller than fixed fields (%d)", hdr.HdrSize, HeaderSize)
	}
	return hdr, nil
}

// Bytes encodes the header, padded with zeroes up to HdrSize.
func (h *Header) Bytes() []byte {
	size := int(h.HdrSize)
	if size < HeaderSize {
		size = HeaderSize
	}
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.LoadAddr)
	binary.LittleEndian.PutUint16(b[8:10], uint16(size))
	binary.LittleEndian.PutUint16(b[10:12], h.ProtectTLVSize)
	binary.LittleEndian.PutUint32(b[12:16], h.ImgSize)
	binary.LittleEndian.PutUint32(b[16:20], h.Flags)
	b[20] = h.Ver.Major
	b[21] = h.Ver.Minor
	binary.LittleEndian.PutUint16(b[22:24], h.Ver.Revision)
	binary.LittleEndian.PutUint32(b[24:28], h.Ver.Build)
	return b
}

// TLVOff returns the offset of the TLV trailer within the image area.
func (h *Header) TLVOff() uint32 {
	return uint32(h.HdrSize) + h.ImgSize
}
