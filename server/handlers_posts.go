package server

import (
	"net/http"

	"github.com/jrsteele09/fb-page-poster/posts"
)

// CreatePostHandler accepts multipart form data: "hashtags" (comma separated) and an optional "file".
func (s *Server) CreatePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSONError(w, "invalid_request", "expected multipart form data", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		sub := posts.Submission{
			PageID:   r.PathValue("pageId"),
			Hashtags: r.FormValue("hashtags"),
		}
		file, header, err := r.FormFile("file")
		switch err {
		case nil:
			defer file.Close()
			sub.File = &posts.File{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		case http.ErrMissingFile:
		default:
			writeJSONError(w, "invalid_request", "unreadable file", http.StatusBadRequest)
			return
		}

		result, err := s.dashboard.CreatePost(r.Context(), workspaceFrom(r), r.PathValue("id"), sub)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
