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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemAreaRead(t *testing.T) {
	a := NewMemArea([]byte{0, 1, 2, 3, 4, 5, 6, 7})

	for _, test := range []struct {
		name    string
		off, n  uint32
		want    []byte
		wantErr bool
	}{
		{name: "start", off: 0, n: 4, want: []byte{0, 1, 2, 3}},
		{name: "end", off: 4, n: 4, want: []byte{4, 5, 6, 7}},
		{name: "empty", off: 8, n: 0, want: []byte{}},
		{name: "past end", off: 5, n: 4, wantErr: true},
		{name: "offset past end", off: 9, n: 1, wantErr: true},
		{name: "overflowing range", off: 0xffffffff, n: 2, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := a.Read(test.off, test.n)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Read: %v, wantErr %t", err, test.wantErr)
			}
			if test.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("Read: got %v, want ErrOutOfRange", err)
				}
				return
			}
			if !bytes.Equal(got, test.want) {
				t.Fatalf("Read = %x, want %x", got, test.want)
			}
		})
	}
}

func TestMemAreaReadCopies(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	a := NewMemArea(buf)
	got, err := a.Read(0, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got[0] = 0xff
	if buf[0] != 1 {
		t.Fatal("Read aliases the backing buffer")
	}
}

func TestWindow(t *testing.T) {
	a := NewMemArea([]byte{0, 1, 2, 3, 4, 5, 6, 7})

	if _, err := NewWindow(a, 4, 8); err == nil {
		t.Fatal("NewWindow past parent end: want error")
	}
	if _, err := NewWindow(nil, 0, 0); err == nil {
		t.Fatal("NewWindow with nil parent: want error")
	}

	w, err := NewWindow(a, 2, 4)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if got, want := w.Size(), uint32(4); got != want {
		t.Fatalf("Size = %d, want %d", got, want)
	}
	got, err := w.Read(1, 2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := []byte{3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("Read = %x, want %x", got, want)
	}
	// In range for the parent but outside the window.
	if _, err := w.Read(2, 4); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Read past window: got %v, want ErrOutOfRange", err)
	}
}

func TestFileArea(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	content := []byte("0123456789")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a, err := OpenFileArea(path)
	if err != nil {
		t.Fatalf("OpenFileArea: %v", err)
	}
	defer a.Close()

	if got, want := a.Size(), uint32(len(content)); got != want {
		t.Fatalf("Size = %d, want %d", got, want)
	}
	got, err := a.Read(3, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := []byte("3456"); !bytes.Equal(got, want) {
		t.Fatalf("Read = %q, want %q", got, want)
	}
	if _, err := a.Read(8, 4); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Read past end: got %v, want ErrOutOfRange", err)
	}

	if _, err := OpenFileArea(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("OpenFileArea on missing file: want error")
	}
}
