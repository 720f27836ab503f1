package credentials

import (
	"net/url"
	"strings"
)

// Redirect holds the query parameters the broker appends when it sends the browser back.
type Redirect struct {
	AccessToken  string
	RefreshToken string
	ProfileImage string
	RedirectURL  string
	Error        string
}

func ParseRedirect(query url.Values) Redirect {
	return Redirect{
		AccessToken:  strings.TrimSpace(query.Get("access_token")),
		RefreshToken: strings.TrimSpace(query.Get("refresh_token")),
		ProfileImage: query.Get("profile_image"),
		RedirectURL:  query.Get("redirect"),
		Error:        query.Get("error"),
	}
}

// IsCallback reports whether the query carries anything for CompleteRedirect.
func (r Redirect) IsCallback() bool {
	return r.AccessToken != "" || r.Error != ""
}
