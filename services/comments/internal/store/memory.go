package store

import (
	"context"
	"sort"
	"sync"

	"github.com/example/kaede/services/comments/internal/domain"
)

// InMemoryStore is a development-only implementation. It is also the fake
// used by service and handler tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]domain.Post
	comments map[string]domain.Comment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		posts:    make(map[string]domain.Post),
		comments: make(map[string]domain.Comment),
	}
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) FindPost(_ context.Context, postID string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[postID]
	if !ok {
		return domain.Post{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) InsertPost(_ context.Context, p domain.Post) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.posts[p.PostID]; ok {
		return existing, nil
	}
	s.posts[p.PostID] = p
	return p, nil
}

func (s *InMemoryStore) IncrementLikes(_ context.Context, postID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return 0, ErrNotFound
	}
	p.Likes++
	s.posts[postID] = p
	return p.Likes, nil
}

func (s *InMemoryStore) CountComments(_ context.Context, postID string) (int64, error) {
	return s.count(postID, false), nil
}

func (s *InMemoryStore) CountLiveComments(_ context.Context, postID string) (int64, error) {
	return s.count(postID, true), nil
}

func (s *InMemoryStore) count(postID string, liveOnly bool) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.comments {
		if c.PostID == postID && !(liveOnly && c.Deleted) {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) ListComments(_ context.Context, postID string, skip, limit int) ([]domain.Comment, error) {
	s.mu.RLock()
	var out []domain.Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ThreadID != out[j].ThreadID {
			return out[i].ThreadID < out[j].ThreadID
		}
		if out[i].SubThreadID != out[j].SubThreadID {
			return out[i].SubThreadID < out[j].SubThreadID
		}
		return out[i].ID < out[j].ID
	})

	if skip >= len(out) {
		return []domain.Comment{}, nil
	}
	out = out[skip:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) InsertComment(_ context.Context, c domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newCommentID()
	s.comments[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) FindComment(_ context.Context, id string) (domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return domain.Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) ThreadExists(_ context.Context, postID string, threadID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments {
		if c.PostID == postID && c.ThreadID == threadID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) FindRoot(_ context.Context, postID string, threadID int64) (domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments {
		if c.PostID == postID && c.ThreadID == threadID && c.SubThreadID == 0 {
			return c, nil
		}
	}
	return domain.Comment{}, ErrNotFound
}

func (s *InMemoryStore) HasOtherReplies(_ context.Context, postID string, threadID, excludeSub int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments {
		if c.PostID == postID && c.ThreadID == threadID && c.SubThreadID != 0 && c.SubThreadID != excludeSub {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) Tombstone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Author, c.Content, c.Password = "", "", ""
	c.Deleted = true
	s.comments[id] = c
	return nil
}

func (s *InMemoryStore) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return ErrNotFound
	}
	delete(s.comments, id)
	return nil
}
