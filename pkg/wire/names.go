package wire

import (
	"fmt"
	"strings"
)

// Named is implemented by every enumeration that is sent to the host by name
// (system events, state requests, variable and unit catalogs).
type Named interface {
	SimName() string
}

// EncodeName converts a symbolic value into its NUL-terminated wire string.
// The name is passed through verbatim: the host matches names case-sensitively.
func EncodeName(n Named) ([]byte, error) {
	return EncodeString(n.SimName())
}

func EncodeString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("name %q contains an embedded NUL byte", s)
	}

	out := make([]byte, len(s)+1)
	copy(out, s)
	return out, nil
}

// DecodeName strips the terminator added by EncodeName.
func DecodeName(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}
