// Package cache holds rendered comment pages keyed by (postId, page).
// Any write to a post invalidates all of its pages.
package cache

import (
	"context"
	"strconv"
)

// InvalidateSubject carries a postId whose pages every instance must drop.
const InvalidateSubject = "comments.cache.invalidate"

// Cache is the page cache contract. Implementations must be safe for
// concurrent use. Values are stored as JSON.
type Cache interface {
	Get(ctx context.Context, postID string, page int, dest any) (bool, error)
	Set(ctx context.Context, postID string, page int, value any) error
	InvalidatePost(ctx context.Context, postID string) error
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string, int, any) (bool, error) { return false, nil }
func (Nop) Set(context.Context, string, int, any) error         { return nil }
func (Nop) InvalidatePost(context.Context, string) error        { return nil }

func pageKey(postID string, page int) string {
	return "comments:page:" + postID + ":" + strconv.Itoa(page)
}

func pagesKey(postID string) string {
	return "comments:pages:" + postID
}
