package facebook

import "io"

// Profile is the validated profile of the Facebook identity behind a session.
type Profile struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

// Page is a Facebook Page the identity administers. PageID is its identity.
type Page struct {
	PageID      string  `json:"pageId"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	AccessToken string  `json:"accessToken"`
	PictureURL  *string `json:"pictureUrl,omitempty"`
}

// MediaKind is how an attachment is sent to the post endpoint.
type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// PostRequest is the multipart payload of create_post.
type PostRequest struct {
	PageID   string
	Hashtags []string
	Media    *Media
}

// Media is one attachment. Kind decides the form field name; MediaNone drops the attachment.
type Media struct {
	Kind        MediaKind
	Filename    string
	ContentType string
	Body        io.Reader
}

// wire shapes as returned by the broker

type pictureJSON struct {
	Data *struct {
		URL string `json:"url"`
	} `json:"data"`
}

type profileJSON struct {
	ID      string       `json:"id"`
	Name    *string      `json:"name"`
	Email   string       `json:"email"`
	Picture *pictureJSON `json:"picture"`
}

type pageJSON struct {
	ID          *string      `json:"id"`
	Name        *string      `json:"name"`
	Category    string       `json:"category"`
	AccessToken string       `json:"access_token"`
	Picture     *pictureJSON `json:"picture"`
}

func (p *pictureJSON) url() string {
	if p == nil || p.Data == nil {
		return ""
	}
	return p.Data.URL
}
