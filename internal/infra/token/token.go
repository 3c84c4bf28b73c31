package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/ports/adapter"
)

var _ adapter.DownloadTokenIssuer = (*Issuer)(nil)

// Issuer mints HMAC-signed download tokens. Forging one requires the server
// secret, not just a guessable purchase/user id pair.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

type downloadClaims struct {
	PurchaseID string `json:"pid"`
	UserID     string `json:"uid"`
	jwt.RegisteredClaims
}

func (i *Issuer) Issue(purchaseID, userID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := downloadClaims{
		PurchaseID: purchaseID,
		UserID:     userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (i *Issuer) Verify(tokenStr string) (*adapter.DownloadClaims, error) {
	var claims downloadClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrTokenInvalid
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !tok.Valid || claims.PurchaseID == "" || claims.UserID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return &adapter.DownloadClaims{
		PurchaseID: claims.PurchaseID,
		UserID:     claims.UserID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
