// Package identity produces the synthetic sender identities used by a
// stress run: phone numbers, display names and provider-style message ids.
package identity

import (
	crand "crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// phonePrefix makes generated numbers resemble an Argentine mobile
	// number, same prefix the real traffic uses.
	phonePrefix = "54911"
	// phoneRandomDigits is the random width after the prefix. A run can
	// reach 1e8 units (ten million users, ten messages each) and every
	// unit draws a fresh number, so the space must keep the expected
	// duplicate count negligible at that scale: by the birthday bound
	// n^2/(2*10^18), 18 digits expect ~5e-3 duplicates across a maximum
	// run. Narrower widths do not clear the bound (12 digits already
	// expect ~5000 there).
	phoneRandomDigits = 18
)

// Generator creates synthetic identities. The zero value is ready to use
// and safe for concurrent use.
type Generator struct{}

// PhoneID returns a fresh synthetic phone number: a fixed country/operator
// prefix followed by random decimal digits.
func (Generator) PhoneID() string {
	var b strings.Builder
	b.Grow(len(phonePrefix) + phoneRandomDigits)
	b.WriteString(phonePrefix)

	buf := make([]byte, phoneRandomDigits)
	if _, err := crand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms; if it ever
		// does, there is no meaningful recovery for a test harness.
		panic(fmt.Sprintf("identity: reading random bytes: %v", err))
	}
	for _, v := range buf {
		b.WriteByte('0' + v%10)
	}
	return b.String()
}

// MessageID returns a provider-style opaque message id, shaped like the
// wamid values WhatsApp assigns.
func (Generator) MessageID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("wamid.%d_%s", time.Now().UnixMilli(), suffix)
}

// DisplayName returns the deterministic label for the nth synthetic user.
func DisplayName(ordinal int) string {
	return fmt.Sprintf("User%d", ordinal)
}
