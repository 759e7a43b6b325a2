package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/kaede/internal/platform/api"
	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/thread"
)

type bannerResponse struct {
	OK     bool   `json:"ok"`
	Server string `json:"server"`
	Kaede  string `json:"kaede"`
}

type postResponse struct {
	OK     bool   `json:"ok"`
	PostID string `json:"postId"`
	Likes  int64  `json:"likes"`
}

type likesResponse struct {
	OK    bool  `json:"ok"`
	Likes int64 `json:"likes"`
}

type listResponse struct {
	OK         bool              `json:"ok"`
	Pagination thread.Pagination `json:"pagination"`
	Comments   []domain.Comment  `json:"comments"`
}

type commentResponse struct {
	OK      bool           `json:"ok"`
	Comment domain.Comment `json:"comment"`
}

type deleteResponse struct {
	OK         bool     `json:"ok"`
	Deleted    []string `json:"deleted"`
	Tombstoned string   `json:"tombstoned,omitempty"`
}

// Banner handles GET /
func Banner(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusTeapot, bannerResponse{OK: true, Server: "Kaede API Server", Kaede: "A neat Ghost theme"})
}

// GetPost handles GET /{postId}
func GetPost(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetPost(r.Context(), chi.URLParam(r, "postId"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postResponse{OK: true, PostID: p.PostID, Likes: p.Likes})
	}
}

// GetLikes handles GET /{postId}/likes
func GetLikes(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		likes, err := svc.GetLikes(r.Context(), chi.URLParam(r, "postId"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, likesResponse{OK: true, Likes: likes})
	}
}

// PostLike handles POST /{postId}/likes
func PostLike(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		likes, err := svc.IncrementLikes(r.Context(), chi.URLParam(r, "postId"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, likesResponse{OK: true, Likes: likes})
	}
}

// ListComments handles GET /{postId}/comments?page=N
func ListComments(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.ListComments(r.Context(), chi.URLParam(r, "postId"), r.URL.Query().Get("page"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		comments := page.Comments
		if comments == nil {
			comments = []domain.Comment{}
		}
		api.WriteJSON(w, http.StatusOK, listResponse{OK: true, Pagination: page.Pagination, Comments: comments})
	}
}

// CreateComment handles POST /{postId}/comments
func CreateComment(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in *thread.CreateInput
		if obj, err := decodeObject(w, r); err == nil {
			in = &thread.CreateInput{
				ReplyTo:  obj["replyTo"],
				Content:  stringField(obj, "content"),
				Author:   stringField(obj, "author"),
				Password: stringField(obj, "password"),
			}
		}
		c, err := svc.CreateComment(r.Context(), chi.URLParam(r, "postId"), in)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, commentResponse{OK: true, Comment: c})
	}
}

// DeleteComment handles DELETE /{postId}/comments/{commentId}
func DeleteComment(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var password *string
		if obj, err := decodeObject(w, r); err == nil {
			password = stringField(obj, "password")
		}
		res, err := svc.DeleteComment(r.Context(), chi.URLParam(r, "postId"), chi.URLParam(r, "commentId"), password)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		deleted := res.Deleted
		if deleted == nil {
			deleted = []string{}
		}
		api.WriteJSON(w, http.StatusOK, deleteResponse{OK: true, Deleted: deleted, Tombstoned: res.Tombstoned})
	}
}
