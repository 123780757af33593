package credential

import (
	"encoding/json"

	"github.com/yujiajie1988/hive/internal/secure"
)

const redactionMarker = "[REDACTED]"

// Secret wraps a secret value so it is never exposed through the default
// string conversion, %v/%s formatting, or JSON marshaling. The only way to
// read the wrapped bytes is the explicit Reveal method.
type Secret struct {
	buf *secure.SecureBuffer
}

// NewSecret copies value into enclave-protected storage. The caller's
// string is not wiped (Go strings are immutable).
func NewSecret(value string) Secret {
	buf, err := secure.NewSecureBuffer([]byte(value))
	if err != nil {
		// NewSecureBuffer never returns an error in the current
		// memguard-backed implementation; keep a safe fallback.
		return Secret{}
	}
	return Secret{buf: buf}
}

// Reveal returns the plaintext value. This is the only accessor; every
// other code path (String, GoString, MarshalJSON, fmt verbs) returns the
// redaction marker instead.
func (s Secret) Reveal() string {
	if s.buf == nil {
		return ""
	}
	return string(s.buf.Reveal())
}

// String implements fmt.Stringer. It deliberately never returns the secret.
func (s Secret) String() string { return redactionMarker }

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string { return redactionMarker }

// MarshalJSON ensures secrets never leak into serialized logs or payloads.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redactionMarker)
}

// IsZero reports whether the secret was never set.
func (s Secret) IsZero() bool { return s.buf == nil }
