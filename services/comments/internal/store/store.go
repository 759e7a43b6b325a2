// Package store persists posts and comments.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/kaede/services/comments/internal/domain"
)

// ErrNotFound is returned when a post or comment does not exist.
var ErrNotFound = errors.New("store: not found")

// PostStore holds the local record of each CMS post.
type PostStore interface {
	FindPost(ctx context.Context, postID string) (domain.Post, error)
	// InsertPost is idempotent: inserting an existing postId returns the stored post.
	InsertPost(ctx context.Context, p domain.Post) (domain.Post, error)
	IncrementLikes(ctx context.Context, postID string) (int64, error)
}

// CommentStore holds comments. Listing order is (threadId, subThreadId).
type CommentStore interface {
	// CountComments counts every stored comment of the post, tombstones included.
	CountComments(ctx context.Context, postID string) (int64, error)
	// CountLiveComments counts comments that are not tombstoned.
	CountLiveComments(ctx context.Context, postID string) (int64, error)
	ListComments(ctx context.Context, postID string, skip, limit int) ([]domain.Comment, error)
	InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	FindComment(ctx context.Context, id string) (domain.Comment, error)
	ThreadExists(ctx context.Context, postID string, threadID int64) (bool, error)
	FindRoot(ctx context.Context, postID string, threadID int64) (domain.Comment, error)
	// HasOtherReplies reports whether the thread holds a reply whose
	// subThreadId is neither 0 nor excludeSub.
	HasOtherReplies(ctx context.Context, postID string, threadID, excludeSub int64) (bool, error)
	// Tombstone clears author, content and password and marks the comment deleted.
	Tombstone(ctx context.Context, id string) error
	DeleteComment(ctx context.Context, id string) error
}

type Store interface {
	PostStore
	CommentStore
	Ping(ctx context.Context) error
}

// newCommentID returns a 24-hex id; every backend uses the same format so ids
// validate the same way regardless of storage.
func newCommentID() string {
	return primitive.NewObjectID().Hex()
}
