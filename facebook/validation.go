package facebook

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/utils"
)

// DecodeProfile validates a profile body. A profile needs at least a name.
func DecodeProfile(body []byte) (Profile, error) {
	var raw profileJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return Profile{}, fmt.Errorf("%w: profile: %v", apperrors.ErrInvalidResponse, err)
	}
	if raw.Name == nil || strings.TrimSpace(*raw.Name) == "" {
		return Profile{}, fmt.Errorf("%w: profile: missing name", apperrors.ErrInvalidResponse)
	}
	return Profile{
		Name:       strings.TrimSpace(*raw.Name),
		Email:      raw.Email,
		PictureURL: raw.Picture.url(),
	}, nil
}

// DecodePages validates a pages body. The body must be an array and every page needs an id
// and a name. Order is kept as returned.
func DecodePages(body []byte) ([]Page, error) {
	var raw []pageJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: pages: %v", apperrors.ErrInvalidResponse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: pages: expected an array", apperrors.ErrInvalidResponse)
	}

	pages := make([]Page, 0, len(raw))
	for i, p := range raw {
		if p.ID == nil || strings.TrimSpace(*p.ID) == "" {
			return nil, fmt.Errorf("%w: pages[%d]: missing id", apperrors.ErrInvalidResponse, i)
		}
		if p.Name == nil {
			return nil, fmt.Errorf("%w: pages[%d]: missing name", apperrors.ErrInvalidResponse, i)
		}
		pages = append(pages, Page{
			PageID:      *p.ID,
			Name:        *p.Name,
			Category:    p.Category,
			AccessToken: p.AccessToken,
			PictureURL:  utils.OptionalString(p.Picture.url()),
		})
	}
	return pages, nil
}
