package tth

import (
	"encoding/base32"
	"fmt"
)

// base32NoPad is the unpadded RFC 4648 base32 encoding used for the textual
// TTH representation exchanged over ADC/NMDC (39 characters for a 192-bit
// value). The standard library's encoding/base32 already implements the
// alphabet clients use; there is no domain-specific variant to reach for.
var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// String returns the base32 textual form of the sum.
func (s Sum) String() string {
	return base32NoPad.EncodeToString(s[:])
}

// ParseSum decodes a base32 TTH string into a Sum.
func ParseSum(s string) (Sum, error) {
	decoded, err := base32NoPad.DecodeString(s)
	if err != nil {
		return Sum{}, fmt.Errorf("tth: invalid base32 value %q: %w", s, err)
	}
	if len(decoded) != Size {
		return Sum{}, fmt.Errorf("tth: decoded value has %d bytes, want %d", len(decoded), Size)
	}
	var sum Sum
	copy(sum[:], decoded)
	return sum, nil
}

// IsZero reports whether the sum is the zero value, used as a sentinel for
// "not yet computed".
func (s Sum) IsZero() bool {
	return s == Sum{}
}
