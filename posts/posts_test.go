package posts_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jrsteele09/fb-page-poster/facebook"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/posts"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	calls   int
	token   string
	request facebook.PostRequest
	err     error
}

func (p *fakePoster) CreatePost(_ context.Context, accessToken string, req facebook.PostRequest) (string, error) {
	p.calls++
	p.token = accessToken
	p.request = req
	if p.err != nil {
		return "", p.err
	}
	return "Post created", nil
}

func TestParseHashtags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"single", "go", []string{"go"}},
		{"trims and drops empties", " go , ,news,, ", []string{"go", "news"}},
		{"keeps inner spaces", "two words, x", []string{"two words", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, posts.ParseHashtags(tt.raw))
		})
	}
}

func TestClassifyMedia(t *testing.T) {
	require.Equal(t, facebook.MediaImage, posts.ClassifyMedia("image/png"))
	require.Equal(t, facebook.MediaImage, posts.ClassifyMedia("IMAGE/JPEG"))
	require.Equal(t, facebook.MediaVideo, posts.ClassifyMedia("video/mp4"))
	require.Equal(t, facebook.MediaNone, posts.ClassifyMedia("application/pdf"))
	require.Equal(t, facebook.MediaNone, posts.ClassifyMedia(""))
}

func TestService_CreatePost(t *testing.T) {
	ctx := context.Background()

	t.Run("submits with the session token", func(t *testing.T) {
		poster := &fakePoster{}
		svc := posts.NewService(poster)

		res, err := svc.CreatePost(ctx, "tok-a", posts.Submission{
			PageID:   "p1",
			Hashtags: "a, b",
			File:     &posts.File{Name: "cat.png", ContentType: "image/png", Body: strings.NewReader("png")},
		})
		require.NoError(t, err)
		require.Equal(t, "Post created", res.Message)
		require.Equal(t, "tok-a", poster.token)
		require.Equal(t, "p1", poster.request.PageID)
		require.Equal(t, []string{"a", "b"}, poster.request.Hashtags)
		require.Equal(t, facebook.MediaImage, poster.request.Media.Kind)
	})

	t.Run("unclassified file is not attached", func(t *testing.T) {
		poster := &fakePoster{}
		svc := posts.NewService(poster)

		_, err := svc.CreatePost(ctx, "tok-a", posts.Submission{
			PageID: "p1",
			File:   &posts.File{Name: "doc.pdf", ContentType: "application/pdf", Body: strings.NewReader("pdf")},
		})
		require.NoError(t, err)
		require.Nil(t, poster.request.Media)
	})

	t.Run("empty token is rejected locally", func(t *testing.T) {
		poster := &fakePoster{}
		svc := posts.NewService(poster)

		_, err := svc.CreatePost(ctx, "  ", posts.Submission{PageID: "p1"})
		require.ErrorIs(t, err, apperrors.ErrMissingToken)
		require.Zero(t, poster.calls)
	})

	t.Run("missing page id", func(t *testing.T) {
		poster := &fakePoster{}
		_, err := posts.NewService(poster).CreatePost(ctx, "tok", posts.Submission{})
		require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
		require.Zero(t, poster.calls)
	})

	t.Run("broker failure surfaces", func(t *testing.T) {
		poster := &fakePoster{err: apperrors.ErrPostFailed}
		_, err := posts.NewService(poster).CreatePost(ctx, "tok", posts.Submission{PageID: "p1"})
		require.ErrorIs(t, err, apperrors.ErrPostFailed)
	})
}
