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

package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/cheggaaa/pb/v3"
	"k8s.io/klog/v2"

	"github.com/butok/mcuboot/image"
	"github.com/butok/mcuboot/verify"
)

// dump prints the image header and every TLV record of an image.
func dump(path string) error {
	area, closeArea, err := openArea(path)
	if err != nil {
		return err
	}
	defer closeArea()

	hdr, err := readHeader(area)
	if err != nil {
		return err
	}

	log.Print(headerInfo(hdr))

	it, err := image.NewTLVIter(hdr, area, image.TLVAny, false, image.WithTrace(klog.V(2).Infof))
	if err != nil {
		return err
	}

	for {
		tlv, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		prot, err := it.Protected(tlv.Off)
		if err != nil {
			return err
		}
		marker := ""
		if prot {
			marker = " (protected)"
		}
		log.Printf("%#08x %-12s %5d bytes%s", tlv.Off, image.TLVTypeName(tlv.Type), tlv.Len, marker)
	}
}

// headerInfo returns the image header in textual format.
func headerInfo(hdr *image.Header) string {
	var info bytes.Buffer

	info.WriteString("---------------------------------------------------------- Image header ----\n")
	info.WriteString(fmt.Sprintf("Version ................: %s\n", hdr.Ver))
	info.WriteString(fmt.Sprintf("Header size ............: %d\n", hdr.HdrSize))
	info.WriteString(fmt.Sprintf("Image size .............: %d\n", hdr.ImgSize))
	info.WriteString(fmt.Sprintf("Protected TLV size .....: %d\n", hdr.ProtectTLVSize))
	info.WriteString(fmt.Sprintf("Load address ...........: %#x\n", hdr.LoadAddr))
	info.WriteString(fmt.Sprintf("Flags ..................: %#08x", hdr.Flags))

	return info.String()
}

// verifyImage checks the image digest and, when a public key is given, its
// signature and dependencies.
func verifyImage(path, keyPath string) error {
	area, closeArea, err := openArea(path)
	if err != nil {
		return err
	}
	defer closeArea()

	hdr, err := readHeader(area)
	if err != nil {
		return err
	}

	bar := pb.Start64(int64(verify.CoveredLen(hdr)))
	progress := verify.WithProgress(func(n int) {
		bar.Add(n)
	})

	if keyPath == "" {
		_, err = verify.Hash(hdr, area, progress)
		bar.Finish()
		if err != nil {
			return err
		}
		log.Printf("digest OK (unsigned check, no key given)")
	} else {
		pub, err := loadPublicKey(keyPath)
		if err != nil {
			bar.Finish()
			return err
		}
		if err = verify.Signature(hdr, area, pub, progress); err != nil {
			bar.Finish()
			return err
		}
		bar.Finish()
		log.Printf("digest and signature OK")
	}

	deps, err := verify.Dependencies(hdr, area)
	if err != nil {
		return err
	}
	for _, d := range deps {
		log.Printf("requires %s", d)
	}

	return nil
}
