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

	"github.com/BurntSushi/toml"
)

// Partition is one named region of a flash layout.
type Partition struct {
	Name   string `toml:"name"`
	Offset uint32 `toml:"offset"`
	Size   uint32 `toml:"size"`
}

// Layout describes the partitioning of a flash device, the equivalent of a
// board's flash map. It is loaded from a TOML file of the form:
//
//	[[partition]]
//	name = "slot0"
//	offset = 0x20000
//	size = 0x60000
type Layout struct {
	Partitions []Partition `toml:"partition"`
}

// LoadLayout reads and validates a flash layout from a TOML file.
func LoadLayout(path string) (*Layout, error) {
	l := &Layout{}
	if _, err := toml.DecodeFile(path, l); err != nil {
		return nil, fmt.Errorf("parsing layout %q: %w", path, err)
	}
	if err := l.validate(); err != nil {
		return nil, fmt.Errorf("invalid layout %q: %w", path, err)
	}
	return l, nil
}

func (l *Layout) validate() error {
	seen := make(map[string]bool)
	for _, p := range l.Partitions {
		if p.Name == "" {
			return fmt.Errorf("partition at offset %#x has no name", p.Offset)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate partition %q", p.Name)
		}
		seen[p.Name] = true
		if p.Size == 0 {
			return fmt.Errorf("partition %q has zero size", p.Name)
		}
		if uint64(p.Offset)+uint64(p.Size) > 1<<32 {
			return fmt.Errorf("partition %q overflows the 32 bit address space", p.Name)
		}
	}
	return nil
}

// Open returns a Window onto the named partition of dev.
func (l *Layout) Open(dev Area, name string) (*Window, error) {
	for _, p := range l.Partitions {
		if p.Name == name {
			return NewWindow(dev, p.Offset, p.Size)
		}
	}
	return nil, fmt.Errorf("no partition %q in layout", name)
}
