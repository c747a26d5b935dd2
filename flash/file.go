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

package flash

import (
	"fmt"
	"math"
	"os"

	"k8s.io/klog/v2"
)

// FileArea is an Area backed by a file holding an image or a raw flash
// dump.
type FileArea struct {
	f    *os.File
	size uint32
}

// OpenFileArea opens path for reading.
func OpenFileArea(path string) (*FileArea, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() > math.MaxUint32 {
		f.Close()
		return nil, fmt.Errorf("flash: %s too large for a flash area (%d bytes)", path, fi.Size())
	}
	klog.V(2).Infof("opened flash area %q (%d bytes)", path, fi.Size())
	return &FileArea{f: f, size: uint32(fi.Size())}, nil
}

// Read implements Area.
func (a *FileArea) Read(off uint32, n uint32) ([]byte, error) {
	if end := uint64(off) + uint64(n); end > uint64(a.size) {
		return nil, fmt.Errorf("%w: [%#x, %#x) in %#x byte file", ErrOutOfRange, off, end, a.size)
	}
	b := make([]byte, n)
	if _, err := a.f.ReadAt(b, int64(off)); err != nil {
		return nil, fmt.Errorf("reading %q: %w", a.f.Name(), err)
	}
	return b, nil
}

// Size implements Area.
func (a *FileArea) Size() uint32 {
	return a.size
}

// Close closes the underlying file.
func (a *FileArea) Close() error {
	return a.f.Close()
}
