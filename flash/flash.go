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

// Package flash provides read access to the storage areas holding firmware
// images. An Area hides the backing device (a flash partition, a file with
// a raw dump, a byte buffer in tests) behind a bounds-checked byte-level
// read, which is all the image parsing code needs.
package flash

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned, possibly wrapped, for reads which are not
// fully contained within an area.
var ErrOutOfRange = errors.New("flash: read out of range")

// Area is a read-only window onto image storage.
//
// Implementations must fail reads which are not fully in bounds rather
// than returning short data: callers parse untrusted content and rely on
// every read being either complete or an error.
type Area interface {
	// Read returns n bytes starting at off.
	Read(off uint32, n uint32) ([]byte, error)
	// Size returns the size of the area in bytes.
	Size() uint32
}

// MemArea is an Area over a byte slice.
type MemArea struct {
	buf []byte
}

// NewMemArea returns an Area reading from b. The slice is not copied.
func NewMemArea(b []byte) *MemArea {
	return &MemArea{buf: b}
}

// Read implements Area.
func (a *MemArea) Read(off uint32, n uint32) ([]byte, error) {
	end := uint64(off) + uint64(n)
	if end > uint64(len(a.buf)) {
		return nil, fmt.Errorf("%w: [%#x, %#x) in %#x byte area", ErrOutOfRange, off, end, len(a.buf))
	}
	b := make([]byte, n)
	copy(b, a.buf[off:end])
	return b, nil
}

// Size implements Area.
func (a *MemArea) Size() uint32 {
	return uint32(len(a.buf))
}

// Window is an Area exposing a sub-range [off, off+size) of a parent Area,
// used to address a single partition within a full flash dump.
type Window struct {
	parent Area
	off    uint32
	size   uint32
}

// NewWindow returns a Window onto parent. The range must lie within the
// parent area.
func NewWindow(parent Area, off, size uint32) (*Window, error) {
	if parent == nil {
		return nil, errors.New("flash: nil parent area")
	}
	if end := uint64(off) + uint64(size); end > uint64(parent.Size()) {
		return nil, fmt.Errorf("window [%#x, %#x) exceeds parent area size %#x", off, end, parent.Size())
	}
	return &Window{parent: parent, off: off, size: size}, nil
}

// Read implements Area.
func (w *Window) Read(off uint32, n uint32) ([]byte, error) {
	if end := uint64(off) + uint64(n); end > uint64(w.size) {
		return nil, fmt.Errorf("%w: [%#x, %#x) in %#x byte window", ErrOutOfRange, off, end, w.size)
	}
	return w.parent.Read(w.off+off, n)
}

// Size implements Area.
func (w *Window) Size() uint32 {
	return w.size
}
