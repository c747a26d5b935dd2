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

// imgtool inspects, verifies and creates MCUboot format firmware images.
package main

import (
	"flag"
	"log"
	"os"

	"k8s.io/klog/v2"

	"github.com/butok/mcuboot/flash"
	"github.com/butok/mcuboot/image"
)

type Config struct {
	dump   string
	verify string
	create string

	out       string
	version   string
	key       string
	deps      string
	hdrSize   uint
	loadAddr  uint
	layout    string
	partition string
}

var conf *Config

func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stdout)

	conf = &Config{}

	flag.StringVar(&conf.dump, "d", "", "dump the TLV records of an image file")
	flag.StringVar(&conf.verify, "V", "", "verify the digest (and signature, with -k) of an image file")
	flag.StringVar(&conf.create, "c", "", "create an image from a payload file")
	flag.StringVar(&conf.out, "o", "image.bin", "output path for -c")
	// -v is taken by klog verbosity.
	flag.StringVar(&conf.version, "ver", "0.0.0", "image version for -c (semver, build metadata becomes the build number)")
	flag.StringVar(&conf.key, "k", "", "PEM key file (public for -V, private for -c)")
	flag.StringVar(&conf.deps, "dep", "", "comma separated image dependencies for -c (e.g. 1:1.2.3,2:0.9.0+7)")
	flag.UintVar(&conf.hdrSize, "hdrsize", image.HeaderSize, "image header size for -c")
	flag.UintVar(&conf.loadAddr, "load", 0, "image load address for -c")
	flag.StringVar(&conf.layout, "l", "", "TOML flash layout file")
	flag.StringVar(&conf.partition, "p", "", "partition name within -l to operate on")
}

// openArea opens the image file, narrowed to the configured layout
// partition when one is set.
func openArea(path string) (flash.Area, func() error, error) {
	fa, err := flash.OpenFileArea(path)
	if err != nil {
		return nil, nil, err
	}
	if conf.layout == "" {
		return fa, fa.Close, nil
	}
	l, err := flash.LoadLayout(conf.layout)
	if err != nil {
		fa.Close()
		return nil, nil, err
	}
	w, err := l.Open(fa, conf.partition)
	if err != nil {
		fa.Close()
		return nil, nil, err
	}
	return w, fa.Close, nil
}

func readHeader(area flash.Area) (*image.Header, error) {
	b, err := area.Read(0, image.HeaderSize)
	if err != nil {
		return nil, err
	}
	return image.ParseHeader(b)
}

func main() {
	var err error

	klog.InitFlags(nil)

	defer func() {
		if flag.NFlag() == 0 {
			flag.PrintDefaults()
		}

		if err != nil {
			log.Fatalf("fatal error, %s", err)
		}
	}()

	flag.Parse()

	switch {
	case len(conf.dump) > 0:
		err = dump(conf.dump)
	case len(conf.verify) > 0:
		err = verifyImage(conf.verify, conf.key)
	case len(conf.create) > 0:
		err = create(conf.create, conf.out)
	}
}
