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

package verify

import (
	"encoding/binary"
	"fmt"

	"github.com/butok/mcuboot/flash"
	"github.com/butok/mcuboot/image"
)

// depSize is the encoded size of a dependency TLV payload: image index,
// three bytes of padding and an 8 byte version.
const depSize = 12

// Dependency is a declared requirement on a minimum version of another
// image in a multi-image setup.
type Dependency struct {
	// Image is the index of the image the dependency refers to.
	Image uint8
	// MinVersion is the lowest version of that image this one runs with.
	MinVersion image.Version
}

func (d Dependency) String() string {
	return fmt.Sprintf("image %d >= %s", d.Image, d.MinVersion)
}

// SatisfiedBy reports whether an installed version v of the target image
// meets the dependency.
func (d Dependency) SatisfiedBy(v image.Version) bool {
	return v.Compare(d.MinVersion) >= 0
}

// Dependencies returns the dependency records declared by the image. When
// the image has a protected TLV area the records must reside there.
func Dependencies(hdr *image.Header, area flash.Area) ([]Dependency, error) {
	if hdr == nil {
		return nil, fmt.Errorf("%w: nil header", image.ErrInvalidArgument)
	}
	prot := hdr.ProtectTLVSize > 0
	it, err := image.NewTLVIter(hdr, area, image.TLVDependency, prot)
	if err != nil {
		return nil, err
	}

	var deps []Dependency
	for {
		tlv, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return deps, nil
		}
		if tlv.Len != depSize {
			return nil, fmt.Errorf("%w: dependency TLV is %d bytes, want %d", image.ErrCorruptTrailer, tlv.Len, depSize)
		}
		b, err := area.Read(tlv.Off, uint32(tlv.Len))
		if err != nil {
			return nil, fmt.Errorf("reading dependency TLV: %w", err)
		}
		deps = append(deps, Dependency{
			Image: b[0],
			MinVersion: image.Version{
				Major:    b[4],
				Minor:    b[5],
				Revision: binary.LittleEndian.Uint16(b[6:8]),
				Build:    binary.LittleEndian.Uint32(b[8:12]),
			},
		})
	}
}
