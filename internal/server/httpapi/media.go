package httpapi

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/dmitrijs2005/gophblog/internal/server/transform"
	"github.com/gorilla/mux"
)

// uploadMedia stores the raw request body under the filename given in the
// query string.
func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request, p *services.Principal) {
	if s.opts.MaxUploadSize > 0 {
		if r.ContentLength > s.opts.MaxUploadSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "upload too large"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	}

	res, err := s.deps.Media.Upload(r.Context(), p.UserID, r.URL.Query().Get("filename"), r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// serveMedia streams a media item, honouring ?w=, ?q= and ?original=.
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	// replaced with the item's policy on success
	w.Header().Set("Cache-Control", "no-store")

	opts, err := parseServeOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_, authenticated := principalFrom(r.Context())

	m, err := s.deps.Media.Serve(r.Context(), mux.Vars(r)["id"], opts, authenticated)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", m.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(m.Data)))
	h.Set("Cache-Control", m.CacheControl)
	h.Set("X-Content-Type-Options", "nosniff")
	if m.Filename != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": m.Filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(m.Data)
}

func parseServeOptions(r *http.Request) (services.ServeOptions, error) {
	q := r.URL.Query()
	var opts services.ServeOptions

	for name, dst := range map[string]*int{"w": &opts.Transform.Width, "q": &opts.Transform.Quality} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: %s must be a non-negative integer", common.ErrValidation, name)
		}
		*dst = n
	}
	if opts.Transform.Width > transform.MaxWidth {
		opts.Transform.Width = transform.MaxWidth
	}

	if v := q.Get("original"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: original must be a boolean", common.ErrValidation)
		}
		opts.Original = b
	}
	return opts, nil
}
