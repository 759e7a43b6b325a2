// Package thread implements the comment operations: lazy post import, likes,
// paged listing, creation of roots and replies, and the soft-delete state
// machine that tombstones roots while replies still hang off them.
package thread

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/kaede/internal/platform/events"
	"github.com/example/kaede/internal/platform/metrics"
	"github.com/example/kaede/services/comments/internal/cache"
	"github.com/example/kaede/services/comments/internal/credential"
	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/ghost"
	"github.com/example/kaede/services/comments/internal/idgen"
	"github.com/example/kaede/services/comments/internal/pagination"
	"github.com/example/kaede/services/comments/internal/store"
)

// PostFetcher reads a post from the CMS. It returns ghost.ErrNotFound when
// the CMS has no such post.
type PostFetcher interface {
	FetchPost(ctx context.Context, id string) (ghost.Post, error)
}

type IDGenerator interface {
	Next() int64
}

// Limits bound what a post may hold. MaxCount <= 0 disables the cap.
type Limits struct {
	MaxCount   int
	MaxAuthor  int
	MaxContent int
	PageSize   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxCount:   10000,
		MaxAuthor:  32,
		MaxContent: 1500,
		PageSize:   pagination.PageSize,
	}
}

type Options struct {
	Store  store.Store
	Posts  PostFetcher
	Hasher credential.Hasher
	Admin  credential.AdminMatcher
	IDs    IDGenerator
	Cache  cache.Cache
	Events *events.Publisher
	Limits Limits
	Log    *zap.Logger
	Now    func() time.Time
}

type Service struct {
	store  store.Store
	posts  PostFetcher
	hasher credential.Hasher
	admin  credential.AdminMatcher
	ids    IDGenerator
	cache  cache.Cache
	events *events.Publisher
	limits Limits
	log    *zap.Logger
	now    func() time.Time

	imports singleflight.Group
	locks   *keyedMutex
	// gens holds a *atomic.Uint64 per post, bumped on every write.
	gens sync.Map
}

func NewService(opts Options) *Service {
	s := &Service{
		store:  opts.Store,
		posts:  opts.Posts,
		hasher: opts.Hasher,
		admin:  opts.Admin,
		ids:    opts.IDs,
		cache:  opts.Cache,
		events: opts.Events,
		limits: opts.Limits,
		log:    opts.Log,
		now:    opts.Now,
		locks:  newKeyedMutex(),
	}
	if s.ids == nil {
		s.ids = idgen.New()
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.limits.PageSize <= 0 {
		s.limits.PageSize = pagination.PageSize
	}
	return s
}

// Pagination describes the returned page and the last page.
type Pagination struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type Page struct {
	Pagination Pagination       `json:"pagination"`
	Comments   []domain.Comment `json:"comments"`
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetPost returns the local record of postID, importing it from the CMS on
// first reference.
func (s *Service) GetPost(ctx context.Context, postID string) (domain.Post, error) {
	if !domain.ValidPostID(postID) {
		return domain.Post{}, domain.ErrInvalidPostID
	}
	p, err := s.store.FindPost(ctx, postID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Post{}, fmt.Errorf("find post: %w", err)
	}

	// Shared by every waiting caller, so the first one's cancellation must
	// not fail the rest.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.imports.Do(postID, func() (interface{}, error) {
		return s.importPost(shared, postID)
	})
	if err != nil {
		return domain.Post{}, err
	}
	return v.(domain.Post), nil
}

func (s *Service) importPost(ctx context.Context, postID string) (domain.Post, error) {
	if s.posts == nil {
		return domain.Post{}, domain.ErrNoSuchPost
	}
	gp, err := s.posts.FetchPost(ctx, postID)
	if errors.Is(err, ghost.ErrNotFound) {
		return domain.Post{}, domain.ErrNoSuchPost
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("fetch post: %w", err)
	}
	if gp.ID != postID {
		return domain.Post{}, domain.ErrNoSuchPost
	}
	p, err := s.store.InsertPost(ctx, domain.Post{PostID: postID})
	if err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

func (s *Service) GetLikes(ctx context.Context, postID string) (int64, error) {
	p, err := s.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	return p.Likes, nil
}

func (s *Service) IncrementLikes(ctx context.Context, postID string) (int64, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return 0, err
	}
	likes, err := s.store.IncrementLikes(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("increment likes: %w", err)
	}
	metrics.LikesIncremented.Inc()
	s.events.Publish(events.SubjectPostLiked, "post.liked", postID, map[string]any{"likes": likes})
	return likes, nil
}

// ListComments returns one page of the post's comments in thread order.
// Tombstoned roots are included so replies keep their anchor. Unknown posts
// yield an empty page; listing never imports from the CMS.
func (s *Service) ListComments(ctx context.Context, postID, rawPage string) (Page, error) {
	if !domain.ValidPostID(postID) {
		return Page{}, domain.ErrInvalidPostID
	}
	w := pagination.Resolve(rawPage, s.limits.PageSize, s.limits.MaxCount)
	gen := s.generation(postID)
	seen := gen.Load()

	var cached Page
	if ok, err := s.cache.Get(ctx, postID, w.Page, &cached); err != nil {
		s.log.Warn("cache get failed", zap.String("post_id", postID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	total, err := s.store.CountComments(ctx, postID)
	if err != nil {
		return Page{}, fmt.Errorf("count comments: %w", err)
	}
	list, err := s.store.ListComments(ctx, postID, w.Skip, w.Limit)
	if err != nil {
		return Page{}, fmt.Errorf("list comments: %w", err)
	}
	out := make([]domain.Comment, len(list))
	for i, c := range list {
		out[i] = c.Public()
	}
	page := Page{
		Pagination: Pagination{Current: w.Page, Max: pagination.MaxPage(int(total), s.limits.PageSize)},
		Comments:   out,
	}
	if gen.Load() != seen {
		return page, nil
	}
	if err := s.cache.Set(ctx, postID, w.Page, page); err != nil {
		s.log.Warn("cache set failed", zap.String("post_id", postID), zap.Error(err))
	}
	// A write that invalidated between the check and Set left this page stale.
	if gen.Load() != seen {
		s.dropPages(ctx, postID)
	}
	return page, nil
}

func (s *Service) generation(postID string) *atomic.Uint64 {
	if g, ok := s.gens.Load(postID); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := s.gens.LoadOrStore(postID, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// invalidate runs after a successful write. Other instances only see the
// write once their own cached pages expire or the invalidation broadcast
// reaches them.
func (s *Service) invalidate(ctx context.Context, postID string) {
	s.generation(postID).Add(1)
	s.dropPages(ctx, postID)
}

func (s *Service) dropPages(ctx context.Context, postID string) {
	if err := s.cache.InvalidatePost(ctx, postID); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("post_id", postID), zap.Error(err))
	}
}

func postLockKey(postID string) string {
	return "post:" + postID
}

func threadLockKey(postID string, threadID int64) string {
	return "thread:" + postID + ":" + strconv.FormatInt(threadID, 10)
}
