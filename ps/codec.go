package ps

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nickyhof/VersionDB/core"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/sha3"
)

// objectKind is the first byte of every stored object.
type objectKind byte

const (
	kindDocument objectKind = iota + 1
	kindBag
	kindTree
	kindCommit
	kindCommentary
)

func (kind objectKind) String() string {
	switch kind {
	case kindDocument:
		return "document"
	case kindBag:
		return "bag"
	case kindTree:
		return "tree"
	case kindCommit:
		return "commit"
	case kindCommentary:
		return "commentary"
	default:
		return fmt.Sprintf("kind(%d)", byte(kind))
	}
}

var errKindMismatch = errors.New("stored kind does not match")

// encodeObject serializes v behind its kind byte.
func encodeObject(kind objectKind, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(kind))

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return buf.Bytes(), nil
}

// decodeObject checks the kind byte and decodes the body into v.
func decodeObject(ref string, kind objectKind, data []byte, v any) error {
	if len(data) == 0 || objectKind(data[0]) != kind {
		return &core.CorruptObjectError{Ref: ref, Kind: kind.String(), Err: errKindMismatch}
	}
	if err := msgpack.Unmarshal(data[1:], v); err != nil {
		return &core.CorruptObjectError{Ref: ref, Kind: kind.String(), Err: err}
	}
	return nil
}

// Sum returns the reference of an encoded object: the hex sha3-256 of
// its stored bytes.
func Sum(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
