package syntax

import (
	"encoding/hex"
	"strings"

	"lukechampine.com/blake3"
)

// Digest returns the hex blake3 digest of content.
func Digest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// TokenDigest returns the digest of a token sequence. Two bodies with the
// same non-trivial tokens in the same order share a digest regardless of
// whitespace or comments.
func TokenDigest(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return Digest([]byte(strings.Join(tokens, "\x00")))
}
