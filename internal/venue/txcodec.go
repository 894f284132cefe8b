package venue

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// DecodeTx decodes a serialized transaction returned by a venue. Base64 is
// the normal encoding. Hex is accepted for older endpoints when it carries a
// 0x prefix or is not valid base64.
func DecodeTx(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		if rest == "" || !isHex(rest) {
			return nil, errors.New("venue: malformed hex transaction")
		}
		return hex.DecodeString(rest)
	}
	if s == "" {
		return nil, errors.New("venue: empty transaction")
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if isHex(s) {
		return hex.DecodeString(s)
	}
	return nil, errors.New("venue: transaction is neither base64 nor hex")
}

// EncodeTx is the wire encoding used when handing a signed transaction back.
func EncodeTx(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
