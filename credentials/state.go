// Package credentials runs the credential lifecycle of every session: login through the
// broker's OAuth redirect, token arrival, refresh ahead of expiry and logout.
package credentials

import "time"

// State of a session's credential.
type State string

const (
	LoggedOut      State = "logged_out"
	Authenticating State = "authenticating"
	LoggedIn       State = "logged_in"
	Expired        State = "expired"
)

// Status is the derived credential view of a session. It never carries token material.
type Status struct {
	State           State      `json:"state"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	ProfileImage    string     `json:"profileImage,omitempty"`
	Notice          string     `json:"notice,omitempty"` // e.g. why the session was logged out
}
