// Package platform holds small helpers shared by the provisioning code.
package platform

import (
	"strings"

	"github.com/google/uuid"
)

// maxTokenLength is the CloudFormation limit for ClientRequestToken.
const maxTokenLength = 128

// NewID returns a random UUID string.
func NewID() string {
	return uuid.New().String()
}

// RequestToken returns an idempotency token for one stack operation. The
// token starts with prefix and operation so stack events can be traced back
// to the command that caused them. Characters outside [a-zA-Z0-9-] are
// replaced with '-'.
func RequestToken(prefix, operation string) string {
	tok := sanitize(prefix + "-" + operation + "-" + NewID())
	if len(tok) > maxTokenLength {
		tok = tok[len(tok)-maxTokenLength:]
	}
	return tok
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, s)
}
