package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/kaede/internal/platform/events"
	"github.com/example/kaede/internal/platform/metrics"
	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/store"
)

// CreateInput is a decoded create request. Nil pointers are absent fields.
// ReplyTo holds the raw JSON value: a json.Number, string or float64 names
// a thread; anything else is ignored.
type CreateInput struct {
	ReplyTo  any
	Content  *string
	Author   *string
	Password *string
}

// CreateComment stores a new root or reply. A nil input means the request
// carried no body.
func (s *Service) CreateComment(ctx context.Context, postID string, in *CreateInput) (domain.Comment, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return domain.Comment{}, err
	}
	if in == nil {
		return domain.Comment{}, domain.ErrInvalidBody
	}

	unlockPost := s.locks.Lock(postLockKey(postID))
	defer unlockPost()

	if s.limits.MaxCount > 0 {
		live, err := s.store.CountLiveComments(ctx, postID)
		if err != nil {
			return domain.Comment{}, fmt.Errorf("count comments: %w", err)
		}
		if live >= int64(s.limits.MaxCount) {
			return domain.Comment{}, domain.ErrTooManyComments
		}
	}

	if in.Content == nil {
		return domain.Comment{}, domain.ErrInvalidContent
	}
	if in.Author == nil {
		return domain.Comment{}, domain.ErrInvalidAuthor
	}
	if in.Password == nil || *in.Password == "" {
		return domain.Comment{}, domain.ErrInvalidPassword
	}

	c := domain.Comment{
		PostID:  postID,
		Content: truncate(*in.Content, s.limits.MaxContent),
		Author:  truncate(*in.Author, s.limits.MaxAuthor),
	}

	if threadID, ok := parseReplyTo(in.ReplyTo); ok {
		unlockThread := s.locks.Lock(threadLockKey(postID, threadID))
		defer unlockThread()

		exists, err := s.store.ThreadExists(ctx, postID, threadID)
		if err != nil {
			return domain.Comment{}, fmt.Errorf("find thread: %w", err)
		}
		if exists {
			c.ThreadID = threadID
			c.SubThreadID = s.ids.Next()
		}
	}
	if c.ThreadID == 0 {
		c.ThreadID = s.ids.Next()
		c.SubThreadID = 0
	}

	hashed, err := s.hasher.Hash(*in.Password)
	if err != nil {
		return domain.Comment{}, err
	}
	c.Password = hashed
	c.Date = s.now().UnixMilli()

	created, err := s.store.InsertComment(ctx, c)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	s.invalidate(ctx, postID)

	kind := "root"
	if !created.IsRoot() {
		kind = "reply"
	}
	metrics.CommentsCreated.WithLabelValues(kind).Inc()
	s.events.Publish(events.SubjectCommentCreated, "comment.created", postID, map[string]any{
		"comment_id":    created.ID,
		"thread_id":     created.ThreadID,
		"sub_thread_id": created.SubThreadID,
	})
	return created.Public(), nil
}

// parseReplyTo accepts a positive integer given as a JSON number or string.
func parseReplyTo(v any) (int64, bool) {
	var (
		n   int64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		n, err = strconv.ParseInt(t.String(), 10, 64)
	case string:
		n, err = strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	case float64:
		if t != math.Trunc(t) || t > 1<<53 {
			return 0, false
		}
		n = int64(t)
	case int64:
		n = t
	case int:
		n = int64(t)
	default:
		return 0, false
	}
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// DeleteResult lists the removed comment ids. When a root is retained as a
// tombstone, Deleted is empty and Tombstoned holds its id.
type DeleteResult struct {
	Deleted    []string `json:"deleted"`
	Tombstoned string   `json:"tombstoned,omitempty"`
}

// DeleteComment applies the soft-delete rules:
//   - a reply is removed; if that leaves a tombstoned root without replies,
//     the root is removed too;
//   - a root with other replies is tombstoned;
//   - a root without replies is removed.
func (s *Service) DeleteComment(ctx context.Context, postID, commentID string, password *string) (DeleteResult, error) {
	if !domain.ValidPostID(postID) {
		return DeleteResult{}, domain.ErrInvalidPostID
	}
	if !domain.ValidCommentID(commentID) {
		return DeleteResult{}, domain.ErrInvalidCommentID
	}

	c, err := s.loadLive(ctx, postID, commentID)
	if err != nil {
		return DeleteResult{}, err
	}
	if password == nil {
		return DeleteResult{}, domain.ErrInvalidPassword
	}
	if !s.admin.Match(*password) && !s.hasher.Verify(c.Password, *password) {
		return DeleteResult{}, domain.ErrInvalidPassword
	}

	unlock := s.locks.Lock(threadLockKey(postID, c.ThreadID))
	defer unlock()

	// Another request may have changed the thread while we verified.
	if c, err = s.loadLive(ctx, postID, commentID); err != nil {
		return DeleteResult{}, err
	}

	others, err := s.store.HasOtherReplies(ctx, postID, c.ThreadID, c.SubThreadID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("find replies: %w", err)
	}

	var res DeleteResult
	if c.IsRoot() {
		res, err = s.deleteRoot(ctx, c, others)
	} else {
		res, err = s.deleteReply(ctx, c, others)
	}
	if err != nil {
		return DeleteResult{}, err
	}
	s.invalidate(ctx, postID)
	return res, nil
}

func (s *Service) loadLive(ctx context.Context, postID, commentID string) (domain.Comment, error) {
	c, err := s.store.FindComment(ctx, commentID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Comment{}, domain.ErrNoSuchComment
	}
	if err != nil {
		return domain.Comment{}, fmt.Errorf("find comment: %w", err)
	}
	if c.Deleted || c.PostID != postID {
		return domain.Comment{}, domain.ErrNoSuchComment
	}
	return c, nil
}

func (s *Service) deleteRoot(ctx context.Context, c domain.Comment, others bool) (DeleteResult, error) {
	if others {
		if err := s.store.Tombstone(ctx, c.ID); err != nil {
			return DeleteResult{}, fmt.Errorf("tombstone comment: %w", err)
		}
		metrics.CommentsDeleted.WithLabelValues(metrics.OutcomeTombstoned).Inc()
		s.events.Publish(events.SubjectCommentTombstoned, "comment.tombstoned", c.PostID, map[string]any{
			"comment_id": c.ID,
			"thread_id":  c.ThreadID,
		})
		return DeleteResult{Deleted: []string{}, Tombstoned: c.ID}, nil
	}
	if err := s.store.DeleteComment(ctx, c.ID); err != nil {
		return DeleteResult{}, fmt.Errorf("delete comment: %w", err)
	}
	metrics.CommentsDeleted.WithLabelValues(metrics.OutcomeRemoved).Inc()
	s.publishDeleted(c, []string{c.ID})
	return DeleteResult{Deleted: []string{c.ID}}, nil
}

func (s *Service) deleteReply(ctx context.Context, c domain.Comment, others bool) (DeleteResult, error) {
	var root domain.Comment
	cascade := false
	if !others {
		r, err := s.store.FindRoot(ctx, c.PostID, c.ThreadID)
		switch {
		case err == nil:
			root, cascade = r, r.Deleted
		case !errors.Is(err, store.ErrNotFound):
			return DeleteResult{}, fmt.Errorf("find root: %w", err)
		}
	}

	// The tombstoned root goes first: if the reply delete then fails, the
	// reply is still live and a retry removes it.
	if cascade {
		if err := s.store.DeleteComment(ctx, root.ID); err != nil {
			return DeleteResult{}, fmt.Errorf("delete tombstoned root: %w", err)
		}
	}
	if err := s.store.DeleteComment(ctx, c.ID); err != nil {
		return DeleteResult{}, fmt.Errorf("delete comment: %w", err)
	}
	deleted := []string{c.ID}
	metrics.CommentsDeleted.WithLabelValues(metrics.OutcomeRemoved).Inc()
	if cascade {
		deleted = append(deleted, root.ID)
		metrics.CommentsDeleted.WithLabelValues(metrics.OutcomeCascade).Inc()
	}
	s.publishDeleted(c, deleted)
	return DeleteResult{Deleted: deleted}, nil
}

func (s *Service) publishDeleted(c domain.Comment, ids []string) {
	s.events.Publish(events.SubjectCommentDeleted, "comment.deleted", c.PostID, map[string]any{
		"comment_id": c.ID,
		"thread_id":  c.ThreadID,
		"deleted":    ids,
	})
}
