package endpoint

import "strings"

// Extras are the in-flight transformations applied while burning. When
// both are set, secure verification wins.
type Extras uint8

const (
	Decompress Extras = 1 << iota
	SecureVerify
)

func (e Extras) String() string {
	var parts []string
	if e&Decompress != 0 {
		parts = append(parts, "decompress")
	}
	if e&SecureVerify != 0 {
		parts = append(parts, "securecheck")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
