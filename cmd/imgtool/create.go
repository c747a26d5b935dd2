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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/coreos/go-semver/semver"

	"github.com/butok/mcuboot/image"
)

// parseVersion maps a semver string onto the image version fields; build
// metadata, when numeric, becomes the build number.
func parseVersion(s string) (image.Version, error) {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return image.Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if sv.Major > math.MaxUint8 || sv.Minor > math.MaxUint8 || sv.Patch > math.MaxUint16 {
		return image.Version{}, fmt.Errorf("version %q out of range for image header", s)
	}
	v := image.Version{
		Major:    uint8(sv.Major),
		Minor:    uint8(sv.Minor),
		Revision: uint16(sv.Patch),
	}
	if sv.Metadata != "" {
		build, err := strconv.ParseUint(sv.Metadata, 10, 32)
		if err != nil {
			return image.Version{}, fmt.Errorf("build metadata of %q is not a number: %w", s, err)
		}
		v.Build = uint32(build)
	}
	return v, nil
}

// parseDeps parses a comma separated list of image dependencies of the
// form index:version.
func parseDeps(s string) (map[uint8]image.Version, error) {
	deps := make(map[uint8]image.Version)
	if s == "" {
		return deps, nil
	}
	for _, d := range strings.Split(s, ",") {
		idx, ver, found := strings.Cut(d, ":")
		if !found {
			return nil, fmt.Errorf("invalid dependency %q, want index:version", d)
		}
		i, err := strconv.ParseUint(idx, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency image index %q: %w", idx, err)
		}
		v, err := parseVersion(ver)
		if err != nil {
			return nil, err
		}
		deps[uint8(i)] = v
	}
	return deps, nil
}

func depPayload(idx uint8, v image.Version) []byte {
	b := make([]byte, 12)
	b[0] = idx
	b[4] = v.Major
	b[5] = v.Minor
	binary.LittleEndian.PutUint16(b[6:8], v.Revision)
	binary.LittleEndian.PutUint32(b[8:12], v.Build)
	return b
}

// create builds a signed image: header, payload and TLV trailer.
func create(payloadPath, outPath string) error {
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return err
	}

	ver, err := parseVersion(conf.version)
	if err != nil {
		return err
	}
	deps, err := parseDeps(conf.deps)
	if err != nil {
		return err
	}

	if conf.hdrSize < image.HeaderSize || conf.hdrSize > math.MaxUint16 {
		return fmt.Errorf("invalid header size %d", conf.hdrSize)
	}
	hdr := &image.Header{
		LoadAddr: uint32(conf.loadAddr),
		HdrSize:  uint16(conf.hdrSize),
		ImgSize:  uint32(len(payload)),
		Ver:      ver,
	}

	b := &image.TrailerBuilder{}
	for idx, v := range deps {
		b.AddProtected(image.TLVDependency, depPayload(idx, v))
	}
	hdr.ProtectTLVSize, err = b.ProtectedSize()
	if err != nil {
		return err
	}

	// The digest covers the header, the payload and the protected TLV
	// area, so the trailer is encoded twice: once to hash its protected
	// records, once with the digest and signature records appended.
	protTrailer, err := b.Bytes()
	if err != nil {
		return err
	}
	covered := bytes.Join([][]byte{hdr.Bytes(), payload, protTrailer[:hdr.ProtectTLVSize]}, nil)

	log.Printf("hashing %d bytes", len(covered))
	bar := pb.Start64(int64(len(covered)))
	h := sha256.New()
	if _, err := io.Copy(h, bar.NewProxyReader(bytes.NewReader(covered))); err != nil {
		bar.Finish()
		return err
	}
	bar.Finish()
	digest := h.Sum(nil)

	b.Add(image.TLVSHA256, digest)

	if conf.key != "" {
		if err := signTrailer(b, digest); err != nil {
			return err
		}
	}

	trailer, err := b.Bytes()
	if err != nil {
		return err
	}

	out := bytes.Join([][]byte{hdr.Bytes(), payload, trailer}, nil)
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}

	log.Printf("created %s version %s (%d bytes, %d byte protected TLV area)", outPath, ver, len(out), hdr.ProtectTLVSize)
	return nil
}

// signTrailer appends KEYHASH and signature records over digest using the
// configured private key.
func signTrailer(b *image.TrailerBuilder, digest []byte) error {
	priv, err := loadPrivateKey(conf.key)
	if err != nil {
		return err
	}

	signer, ok := priv.(crypto.Signer)
	if !ok {
		return fmt.Errorf("key type %T cannot sign", priv)
	}
	der, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return err
	}
	keyHash := sha256.Sum256(der)
	b.Add(image.TLVKeyHash, keyHash[:])

	switch key := priv.(type) {
	case ed25519.PrivateKey:
		b.Add(image.TLVED25519, ed25519.Sign(key, digest))
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, key, digest)
		if err != nil {
			return err
		}
		b.Add(image.TLVECDSASig, sig)
	default:
		return fmt.Errorf("unsupported private key type %T", priv)
	}
	return nil
}

func loadPrivateKey(path string) (any, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	return x509.ParsePKCS8PrivateKey(block.Bytes)
}

func loadPublicKey(path string) (any, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

func readPEM(path string) (*pem.Block, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(buf)
	if block == nil {
		return nil, errors.New("no PEM block found in " + path)
	}
	return block, nil
}
