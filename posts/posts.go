// Package posts builds and submits page posts on behalf of one session.
package posts

import (
	"context"
	"io"
	"strings"

	"github.com/jrsteele09/fb-page-poster/facebook"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/jrsteele09/fb-page-poster/internal/utils"
	"github.com/rs/zerolog/log"
)

// Poster submits a prepared post to the broker.
type Poster interface {
	CreatePost(ctx context.Context, accessToken string, req facebook.PostRequest) (string, error)
}

// File is an uploaded attachment as received from the form.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Submission is one post as entered for a page: raw comma separated hashtags and at most one file.
type Submission struct {
	PageID   string
	Hashtags string
	File     *File
}

type Result struct {
	Message string `json:"message"`
}

type Service struct {
	poster  Poster
	metrics *metrics.Metrics
}

type ServiceOption func(*Service)

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(poster Poster, options ...ServiceOption) *Service {
	s := &Service{poster: poster}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// CreatePost submits sub with accessToken, which must be the token of the session the page
// belongs to. An empty token is rejected before anything is sent.
func (s *Service) CreatePost(ctx context.Context, accessToken string, sub Submission) (result Result, err error) {
	req := NewRequest(sub)
	defer func() {
		if s.metrics != nil {
			s.metrics.Posts.WithLabelValues(mediaLabel(req.Media), metrics.Outcome(err)).Inc()
		}
	}()

	if strings.TrimSpace(accessToken) == "" {
		return Result{}, apperrors.Wrapf(apperrors.ErrMissingToken, "session token is required to create a post")
	}
	if strings.TrimSpace(sub.PageID) == "" {
		return Result{}, apperrors.Wrapf(apperrors.ErrInvalidRequest, "page id is required")
	}

	message, err := s.poster.CreatePost(ctx, accessToken, req)
	if err != nil {
		log.Warn().Err(err).Str("page", sub.PageID).Msg("create post failed")
		return Result{}, err
	}
	log.Info().Str("page", sub.PageID).Int("hashtags", len(req.Hashtags)).Msg("post created")
	return Result{Message: message}, nil
}

// NewRequest turns a submission into the broker request.
func NewRequest(sub Submission) facebook.PostRequest {
	req := facebook.PostRequest{
		PageID:   sub.PageID,
		Hashtags: ParseHashtags(sub.Hashtags),
	}
	if sub.File != nil {
		if kind := ClassifyMedia(sub.File.ContentType); kind != facebook.MediaNone {
			req.Media = &facebook.Media{
				Kind:        kind,
				Filename:    sub.File.Name,
				ContentType: sub.File.ContentType,
				Body:        sub.File.Body,
			}
		}
	}
	return req
}

// ParseHashtags splits comma separated input, trims it and drops empty entries.
func ParseHashtags(raw string) []string {
	return utils.SplitAndTrim(raw, ",")
}

// ClassifyMedia maps a declared media type to the form field it is sent under.
// Anything that is neither image nor video is not attached.
func ClassifyMedia(contentType string) facebook.MediaKind {
	switch ct := strings.ToLower(strings.TrimSpace(contentType)); {
	case strings.HasPrefix(ct, "image/"):
		return facebook.MediaImage
	case strings.HasPrefix(ct, "video/"):
		return facebook.MediaVideo
	default:
		return facebook.MediaNone
	}
}

func mediaLabel(m *facebook.Media) string {
	if m == nil {
		return "none"
	}
	return string(m.Kind)
}
