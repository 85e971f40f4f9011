package rag

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// Blob layout: magic | version | kind | payload | HMAC-SHA256.
// The MAC covers the content hash as well, so a valid blob cannot be replayed
// under another document.
const (
	blobVersion byte = 1
	macSize          = sha256.Size
)

var blobMagic = []byte("KTXI")

type blobKind byte

const (
	kindLocal  blobKind = 1
	kindQdrant blobKind = 2
)

func (k blobKind) String() string {
	switch k {
	case kindLocal:
		return "local"
	case kindQdrant:
		return "qdrant"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

type signer struct {
	key []byte
}

func newSigner(key []byte) *signer {
	k := make([]byte, len(key))
	copy(k, key)
	return &signer{key: k}
}

func (s *signer) mac(contentHash string, header, payload []byte) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(contentHash))
	m.Write([]byte{0})
	m.Write(header)
	m.Write(payload)
	return m.Sum(nil)
}

func (s *signer) seal(contentHash string, kind blobKind, payload []byte) []byte {
	header := append(append([]byte{}, blobMagic...), blobVersion, byte(kind))

	out := make([]byte, 0, len(header)+len(payload)+macSize)
	out = append(out, header...)
	out = append(out, payload...)
	return append(out, s.mac(contentHash, header[len(blobMagic):], payload)...)
}

// open verifies blob and returns its kind and payload. Nothing in the payload
// is decoded before the MAC check passes.
func (s *signer) open(contentHash string, blob []byte) (blobKind, []byte, error) {
	headerLen := len(blobMagic) + 2
	if len(blob) < headerLen+macSize {
		return 0, nil, fmt.Errorf("%w: blob too short", ErrUntrustedIndex)
	}
	if !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return 0, nil, fmt.Errorf("%w: bad magic", ErrUntrustedIndex)
	}

	header := blob[len(blobMagic):headerLen]
	payload := blob[headerLen : len(blob)-macSize]
	sum := blob[len(blob)-macSize:]

	if !hmac.Equal(sum, s.mac(contentHash, header, payload)) {
		return 0, nil, fmt.Errorf("%w: signature mismatch", ErrUntrustedIndex)
	}
	if header[0] != blobVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrUntrustedIndex, header[0])
	}

	return blobKind(header[1]), payload, nil
}
