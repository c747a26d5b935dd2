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

// Package verify checks image integrity and authenticity using the TLV
// records attached to an image: the digest over the signed portion of the
// image, the signature over that digest, and the declared dependencies on
// other images.
package verify

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"hash"

	"github.com/butok/mcuboot/flash"
	"github.com/butok/mcuboot/image"
)

// readChunk limits the size of individual flash reads while hashing, so
// that arbitrarily large images can be verified with bounded memory.
const readChunk = 32 * 1024

var (
	// ErrNoDigest is returned when the image carries no digest TLV.
	ErrNoDigest = errors.New("verify: image has no digest TLV")
	// ErrDigestMismatch is returned when the image content does not hash
	// to the digest recorded in the trailer.
	ErrDigestMismatch = errors.New("verify: image digest mismatch")
	// ErrNoSignature is returned when the image carries no signature TLV
	// usable with the supplied public key.
	ErrNoSignature = errors.New("verify: image has no signature TLV")
	// ErrSignatureInvalid is returned when signature verification fails.
	ErrSignatureInvalid = errors.New("verify: invalid image signature")
	// ErrKeyMismatch is returned when the trailer's KEYHASH record does
	// not match the supplied public key.
	ErrKeyMismatch = errors.New("verify: KEYHASH does not match public key")
)

type options struct {
	progress func(n int)
}

// Option adjusts the behavior of Hash and Signature.
type Option func(*options)

// WithProgress registers a callback invoked with the number of bytes
// hashed after each read while computing the image digest.
func WithProgress(f func(n int)) Option {
	return func(o *options) {
		o.progress = f
	}
}

// CoveredLen returns the number of bytes of the image area covered by the
// digest: header, payload and protected TLV area.
func CoveredLen(hdr *image.Header) uint32 {
	return hdr.TLVOff() + uint32(hdr.ProtectTLVSize)
}

var digestHash = map[uint16]func() hash.Hash{
	image.TLVSHA256: sha256.New,
	image.TLVSHA384: sha512.New384,
	image.TLVSHA512: sha512.New,
}

// Hash locates the digest TLV of the image described by hdr, recomputes
// the digest over the signed portion and compares the two. It returns the
// computed digest on success.
func Hash(hdr *image.Header, area flash.Area, opts ...Option) ([]byte, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	it, err := image.NewTLVIter(hdr, area, image.TLVAny, false)
	if err != nil {
		return nil, err
	}

	var want []byte
	var newHash func() hash.Hash
	for {
		tlv, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoDigest
		}
		nh, isDigest := digestHash[tlv.Type]
		if !isDigest {
			continue
		}
		want, err = area.Read(tlv.Off, uint32(tlv.Len))
		if err != nil {
			return nil, fmt.Errorf("reading %s TLV: %w", image.TLVTypeName(tlv.Type), err)
		}
		newHash = nh
		break
	}

	h := newHash()
	if len(want) != h.Size() {
		return nil, fmt.Errorf("%w: digest TLV is %d bytes, want %d", ErrDigestMismatch, len(want), h.Size())
	}
	if err := hashImage(h, hdr, area, o.progress); err != nil {
		return nil, err
	}

	got := h.Sum(nil)
	if !bytes.Equal(got, want) {
		return nil, fmt.Errorf("%w: computed %x, trailer records %x", ErrDigestMismatch, got, want)
	}
	return got, nil
}

// hashImage feeds the signed portion of the image area to h in bounded
// chunks.
func hashImage(h hash.Hash, hdr *image.Header, area flash.Area, progress func(n int)) error {
	end := CoveredLen(hdr)
	for off := uint32(0); off < end; {
		n := end - off
		if n > readChunk {
			n = readChunk
		}
		b, err := area.Read(off, n)
		if err != nil {
			return fmt.Errorf("reading image at %#x: %w", off, err)
		}
		h.Write(b)
		off += n
		if progress != nil {
			progress(int(n))
		}
	}
	return nil
}

// Signature verifies the image signature against pub.
//
// The digest TLV is recomputed and checked first, then the KEYHASH record
// (when present) is checked against pub, and finally the signature record
// matching the key type is verified over the image digest. Ed25519 and
// ECDSA P-256/P-384 keys are supported.
func Signature(hdr *image.Header, area flash.Area, pub crypto.PublicKey, opts ...Option) error {
	digest, err := Hash(hdr, area, opts...)
	if err != nil {
		return err
	}

	if err := checkKeyHash(hdr, area, pub); err != nil {
		return err
	}

	var sigType uint16
	switch pub.(type) {
	case ed25519.PublicKey:
		sigType = image.TLVED25519
	case *ecdsa.PublicKey:
		sigType = image.TLVECDSASig
	default:
		return fmt.Errorf("verify: unsupported public key type %T", pub)
	}

	it, err := image.NewTLVIter(hdr, area, sigType, false)
	if err != nil {
		return err
	}
	tlv, ok, err := it.Next()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSignature
	}
	sig, err := area.Read(tlv.Off, uint32(tlv.Len))
	if err != nil {
		return fmt.Errorf("reading %s TLV: %w", image.TLVTypeName(tlv.Type), err)
	}

	switch key := pub.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(key, digest, sig) {
			return ErrSignatureInvalid
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return ErrSignatureInvalid
		}
	}
	return nil
}

// checkKeyHash compares the trailer's KEYHASH record, if any, against the
// SHA-256 of the public key in PKIX DER form.
func checkKeyHash(hdr *image.Header, area flash.Area, pub crypto.PublicKey) error {
	it, err := image.NewTLVIter(hdr, area, image.TLVKeyHash, false)
	if err != nil {
		return err
	}
	tlv, ok, err := it.Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	want, err := area.Read(tlv.Off, uint32(tlv.Len))
	if err != nil {
		return fmt.Errorf("reading KEYHASH TLV: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	got := sha256.Sum256(der)
	if !bytes.Equal(got[:], want) {
		return ErrKeyMismatch
	}
	return nil
}
