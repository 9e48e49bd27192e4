package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/gorilla/mux"
)

type postRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Summary   string `json:"summary"`
	Thumbnail string `json:"thumbnail"`
	Published bool   `json:"published"`
}

func (p postRequest) input() services.PostInput {
	return services.PostInput{
		Title:     p.Title,
		Content:   p.Content,
		Summary:   p.Summary,
		Thumbnail: p.Thumbnail,
		Published: p.Published,
	}
}

type postResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPostResponse(p *models.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Content:   p.Content,
		Summary:   p.Summary,
		Thumbnail: p.Thumbnail,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, p *services.Principal) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	post, err := s.deps.Posts.Create(r.Context(), p.UserID, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	_, authenticated := principalFrom(r.Context())

	post, err := s.deps.Posts.Get(r.Context(), mux.Vars(r)["id"], authenticated)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request, _ *services.Principal) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	post, err := s.deps.Posts.Update(r.Context(), mux.Vars(r)["id"], req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request, _ *services.Principal) {
	if err := s.deps.Posts.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
