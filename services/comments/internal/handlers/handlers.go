// Package handlers binds the comment operations to HTTP.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/kaede/internal/platform/api"
	"github.com/example/kaede/internal/platform/httpserver"
	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/thread"
)

const maxBodyBytes = 1 << 20

// Service is the operation surface the handlers need.
type Service interface {
	GetPost(ctx context.Context, postID string) (domain.Post, error)
	GetLikes(ctx context.Context, postID string) (int64, error)
	IncrementLikes(ctx context.Context, postID string) (int64, error)
	ListComments(ctx context.Context, postID, rawPage string) (thread.Page, error)
	CreateComment(ctx context.Context, postID string, in *thread.CreateInput) (domain.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string, password *string) (thread.DeleteResult, error)
}

var _ Service = (*thread.Service)(nil)

// Mount registers the comment routes on r. Call httpserver.SetupRouter first.
func Mount(r chi.Router, svc Service, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/", Banner)
	r.Get("/{postId}", GetPost(svc, log))
	r.Get("/{postId}/likes", GetLikes(svc, log))
	r.Post("/{postId}/likes", PostLike(svc, log))
	r.Get("/{postId}/comments", ListComments(svc, log))
	r.Post("/{postId}/comments", CreateComment(svc, log))
	r.Delete("/{postId}/comments/{commentId}", DeleteComment(svc, log))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	api.NotFound(w, httpserver.RequestIDFromContext(r.Context()))
}

// writeError reports expected failures by kind and hides everything else.
// Only unexpected failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	if kind, ok := domain.KindOf(err); ok {
		api.Unprocessable(w, string(kind), rid)
		return
	}
	log.Error("request failed",
		zap.String("request_id", rid),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	api.Internal(w, rid)
}

var errNotObject = errors.New("body is not a JSON object")

// decodeObject reads a JSON object body, keeping numbers as json.Number.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// stringField returns the field when it is a JSON string, nil otherwise.
func stringField(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return &s
}
