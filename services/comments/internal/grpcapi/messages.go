package grpcapi

import (
	"encoding/json"

	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/thread"
)

type PostRequest struct {
	PostID string `json:"postId"`
}

type PostResponse struct {
	PostID string `json:"postId"`
	Likes  int64  `json:"likes"`
}

type LikesResponse struct {
	Likes int64 `json:"likes"`
}

type ListCommentsRequest struct {
	PostID string `json:"postId"`
	Page   string `json:"page,omitempty"`
}

type ListCommentsResponse struct {
	Pagination thread.Pagination `json:"pagination"`
	Comments   []domain.Comment  `json:"comments"`
}

// CreateCommentRequest mirrors the REST body. ReplyTo is kept raw so both
// numbers and strings are accepted.
type CreateCommentRequest struct {
	PostID   string          `json:"postId"`
	ReplyTo  json.RawMessage `json:"replyTo,omitempty"`
	Content  *string         `json:"content,omitempty"`
	Author   *string         `json:"author,omitempty"`
	Password *string         `json:"password,omitempty"`
}

type CommentResponse struct {
	Comment domain.Comment `json:"comment"`
}

type DeleteCommentRequest struct {
	PostID    string  `json:"postId"`
	CommentID string  `json:"commentId"`
	Password  *string `json:"password,omitempty"`
}

type DeleteCommentResponse struct {
	Deleted    []string `json:"deleted"`
	Tombstoned string   `json:"tombstoned,omitempty"`
}
