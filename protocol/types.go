package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain is the protocol-level identifier of a ledger. It is assigned by the
// messaging protocol and is unrelated to the ledger's own chain id.
type Domain uint32

func (d Domain) String() string {
	return fmt.Sprintf("Domain(%d)", uint32(d))
}

// Bytes32 is a fixed 32-byte value (hashes, message ids, padded addresses).
type Bytes32 [32]byte

// NewBytes32FromString creates a 32-sized bytes array from a hex-encoded string.
func NewBytes32FromString(s string) (Bytes32, error) {
	if len(s) > 66 { // "0x" + 64 hex chars
		return Bytes32{}, fmt.Errorf("Bytes32 must be at most 32 bytes (64 hex chars) long: %s", s)
	}

	if !strings.HasPrefix(s, "0x") {
		return Bytes32{}, fmt.Errorf("Bytes32 must start with '0x' prefix: %s", s)
	}

	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return Bytes32{}, fmt.Errorf("failed to decode hex: %w", err)
	}

	var res Bytes32
	copy(res[32-len(b):], b)
	return res, nil
}

func (b Bytes32) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

func (b Bytes32) IsEmpty() bool {
	return b == Bytes32{}
}

func (b Bytes32) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, b.String())), nil
}

func (b *Bytes32) UnmarshalJSON(data []byte) error {
	v := string(data)
	if len(v) < 4 {
		return fmt.Errorf("invalid Bytes32: %s", v)
	}
	v = v[1 : len(v)-1] // trim quotes

	if !strings.HasPrefix(v, "0x") {
		return fmt.Errorf("bytes must start with '0x' prefix: %s", v)
	}
	v = v[2:]

	bCp, err := hex.DecodeString(v)
	if err != nil {
		return err
	}

	copy(b[:], bCp)
	return nil
}

// ByteSlice is a wrapper around []byte that marshals/unmarshals to/from hex
// instead of base64.
type ByteSlice []byte

// MarshalJSON returns the hex representation of the bytes.
func (h ByteSlice) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	if len(h) == 0 {
		return []byte(`"0x"`), nil
	}
	return []byte(fmt.Sprintf(`"0x%s"`, hex.EncodeToString(h))), nil
}

// UnmarshalJSON decodes a hex string into a ByteSlice.
func (h *ByteSlice) UnmarshalJSON(data []byte) error {
	v := string(data)

	if v == "null" {
		*h = nil
		return nil
	}

	if len(v) < 2 {
		return fmt.Errorf("invalid ByteSlice: %s", v)
	}

	// trim quotes
	v = v[1 : len(v)-1]

	if v == "" || v == "0x" {
		*h = ByteSlice{}
		return nil
	}

	v = strings.TrimPrefix(v, "0x")

	bytes, err := hex.DecodeString(v)
	if err != nil {
		return fmt.Errorf("failed to decode hex: %w", err)
	}

	*h = ByteSlice(bytes)
	return nil
}

// String returns the hex representation with 0x prefix.
func (h ByteSlice) String() string {
	if len(h) == 0 {
		return "0x"
	}
	return "0x" + hex.EncodeToString(h)
}
