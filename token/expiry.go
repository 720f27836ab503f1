package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
)

// DecodeExpiry reads the exp claim (epoch seconds) from a JWT shaped access token.
// The signature is not verified: the token is issued by the broker and only the broker
// can validate it. A token without a readable exp claim is rejected.
func DecodeExpiry(rawToken string) (time.Time, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return time.Time{}, apperrors.ErrMissingToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", apperrors.ErrTokenDecode, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", apperrors.ErrTokenDecode, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: token missing exp claim", apperrors.ErrTokenDecode)
	}
	return exp.Time, nil
}
