package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"resource-marketplace/internal/domain/ports/adapter"
)

var _ adapter.LicenseKeyGenerator = (*LicenseKeygen)(nil)

// LicenseKeygen derives license keys deterministically from the purchase
// seed, so re-invocation for the same purchase is pure and reproducible.
type LicenseKeygen struct {
	secret []byte
}

func NewLicenseKeygen(secret string) *LicenseKeygen {
	return &LicenseKeygen{secret: []byte(secret)}
}

// base32 keeps keys typeable; padding is dropped so groups stay uniform.
var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generate returns a key like "7K3DQ-MN4PX-A2B5C-D6E8F". The same seed
// always yields the same key.
func (g *LicenseKeygen) Generate(seed adapter.LicenseSeed) string {
	h := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(h, "%s|%s|%s|%s|%d",
		seed.ResourceID, seed.UserID, strings.ToLower(seed.Email), seed.LicenseType, seed.ActivationLimit)

	enc := keyEncoding.EncodeToString(h.Sum(nil))
	groups := []string{enc[0:5], enc[5:10], enc[10:15], enc[15:20]}
	return strings.Join(groups, "-")
}
