package storage

import "strings"

// Workspace level keys.
const (
	KeySessionsList    = "sessions-list"
	KeyActiveSessionID = "active-session-id"
	KeyRedirectURL     = "redirect_url"
)

const (
	tokenPrefix        = "token_"
	refreshTokenPrefix = "refresh_token_"
	expirationPrefix   = "token_expiration_"
	profilePrefix      = "profile_"
	pagesPrefix        = "pages_"
	profileImagePrefix = "profile_image_"
	authPendingPrefix  = "auth_pending_"
	lastErrorPrefix    = "last_error_"
)

func TokenKey(sessionID string) string        { return tokenPrefix + sessionID }
func RefreshTokenKey(sessionID string) string { return refreshTokenPrefix + sessionID }
func ExpirationKey(sessionID string) string   { return expirationPrefix + sessionID }
func ProfileKey(sessionID string) string      { return profilePrefix + sessionID }
func PagesKey(sessionID string) string        { return pagesPrefix + sessionID }
func ProfileImageKey(sessionID string) string { return profileImagePrefix + sessionID }
func AuthPendingKey(sessionID string) string  { return authPendingPrefix + sessionID }
func LastErrorKey(sessionID string) string    { return lastErrorPrefix + sessionID }

// CredentialKeys are the keys cleared by a logout.
func CredentialKeys(sessionID string) []string {
	return []string{
		TokenKey(sessionID),
		RefreshTokenKey(sessionID),
		ExpirationKey(sessionID),
		ProfileImageKey(sessionID),
		AuthPendingKey(sessionID),
	}
}

// DataKeys are the keys owned by the profile/pages cache.
func DataKeys(sessionID string) []string {
	return []string{ProfileKey(sessionID), PagesKey(sessionID)}
}

// SessionKeys lists every namespaced key a session can own.
func SessionKeys(sessionID string) []string {
	keys := append(CredentialKeys(sessionID), DataKeys(sessionID)...)
	return append(keys, LastErrorKey(sessionID))
}

// IsSecretKey reports whether the key holds bearer material. Pages carry page access tokens.
func IsSecretKey(key string) bool {
	if strings.HasPrefix(key, expirationPrefix) {
		return false
	}
	return strings.HasPrefix(key, tokenPrefix) ||
		strings.HasPrefix(key, refreshTokenPrefix) ||
		strings.HasPrefix(key, pagesPrefix)
}
