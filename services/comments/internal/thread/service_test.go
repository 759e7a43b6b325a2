package thread

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/kaede/services/comments/internal/cache"
	"github.com/example/kaede/services/comments/internal/credential"
	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/ghost"
	"github.com/example/kaede/services/comments/internal/store"
)

const testPost = "5e8f1c2a9b3d4e5f6a7b8c9d"

type fakeFetcher struct {
	mu    sync.Mutex
	posts map[string]ghost.Post
	err   error
	calls atomic.Int32
	delay time.Duration
}

func newFakeFetcher(ids ...string) *fakeFetcher {
	f := &fakeFetcher{posts: make(map[string]ghost.Post)}
	for _, id := range ids {
		f.posts[id] = ghost.Post{ID: id, Title: "post " + id}
	}
	return f
}

func (f *fakeFetcher) FetchPost(ctx context.Context, id string) (ghost.Post, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return ghost.Post{}, err
	}
	if f.err != nil {
		return ghost.Post{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return ghost.Post{}, ghost.ErrNotFound
	}
	return p, nil
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) Next() int64 { return 1000 + s.n.Add(1) }

func newTestService(t *testing.T, limits Limits) (*Service, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc := NewService(Options{
		Store:  st,
		Posts:  newFakeFetcher(testPost),
		Admin:  credential.NewAdminMatcher("admin-pw"),
		IDs:    &seqIDs{},
		Limits: limits,
		Now:    func() time.Time { return time.UnixMilli(1700000000123) },
	})
	return svc, st
}

func strp(s string) *string { return &s }

func input(replyTo any, content, author, password string) *CreateInput {
	return &CreateInput{ReplyTo: replyTo, Content: strp(content), Author: strp(author), Password: strp(password)}
}

func expectKind(t *testing.T, err error, want domain.Kind) {
	t.Helper()
	kind, ok := domain.KindOf(err)
	if !ok || kind != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func TestGetPost_ImportsOnce(t *testing.T) {
	svc, st := newTestService(t, DefaultLimits())
	ctx := context.Background()

	p, err := svc.GetPost(ctx, testPost)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if p.PostID != testPost || p.Likes != 0 {
		t.Fatalf("unexpected post %+v", p)
	}
	if _, err := st.FindPost(ctx, testPost); err != nil {
		t.Fatalf("expected post stored: %v", err)
	}
	_, _ = svc.GetPost(ctx, testPost)
	if n := svc.posts.(*fakeFetcher).calls.Load(); n != 1 {
		t.Fatalf("expected one CMS fetch, got %d", n)
	}
}

func TestGetPost_Errors(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	_, err := svc.GetPost(ctx, "NOT-HEX")
	expectKind(t, err, domain.KindInvalidPostID)

	_, err = svc.GetPost(ctx, "abcdef")
	expectKind(t, err, domain.KindNoSuchPost)
}

func TestGetPost_MismatchedID(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	f := svc.posts.(*fakeFetcher)
	f.posts["abc"] = ghost.Post{ID: "def"}

	_, err := svc.GetPost(context.Background(), "abc")
	expectKind(t, err, domain.KindNoSuchPost)
}

func TestGetPost_FetchFailureIsUnexpected(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	svc.posts.(*fakeFetcher).err = errors.New("dial tcp: connection refused")

	_, err := svc.GetPost(context.Background(), testPost)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := domain.KindOf(err); ok {
		t.Fatalf("expected unexpected failure, got kind %v", err)
	}
}

func TestGetPost_ConcurrentImportsCollapse(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	f := svc.posts.(*fakeFetcher)
	f.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GetPost(context.Background(), testPost); err != nil {
				t.Errorf("get post: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := f.calls.Load(); n > 2 {
		t.Fatalf("expected concurrent imports to collapse, got %d fetches", n)
	}
}

func TestLikes(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	for want := int64(1); want <= 2; want++ {
		got, err := svc.IncrementLikes(ctx, testPost)
		if err != nil {
			t.Fatalf("like: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	likes, err := svc.GetLikes(ctx, testPost)
	if err != nil || likes != 2 {
		t.Fatalf("expected 2 likes, got %d (%v)", likes, err)
	}

	_, err = svc.IncrementLikes(ctx, "abcdef")
	expectKind(t, err, domain.KindNoSuchPost)
}

func TestCreateComment_Root(t *testing.T) {
	svc, st := newTestService(t, DefaultLimits())
	ctx := context.Background()

	c, err := svc.CreateComment(ctx, testPost, input(nil, "hello", "alice", "pw"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.SubThreadID != 0 || c.ThreadID == 0 {
		t.Fatalf("expected root, got %+v", c)
	}
	if c.Password != "" {
		t.Fatal("expected returned comment without password")
	}
	if c.Date != 1700000000123 {
		t.Fatalf("expected date in unix ms, got %d", c.Date)
	}
	stored, _ := st.FindComment(ctx, c.ID)
	if stored.Password == "" || stored.Password == "pw" {
		t.Fatalf("expected hashed credential, got %q", stored.Password)
	}
}

func TestCreateComment_Reply(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	root, _ := svc.CreateComment(ctx, testPost, input(nil, "root", "a", "pw"))

	for name, replyTo := range map[string]any{
		"number":  json.Number(itoa(root.ThreadID)),
		"string":  itoa(root.ThreadID),
		"float64": float64(root.ThreadID),
	} {
		t.Run(name, func(t *testing.T) {
			r, err := svc.CreateComment(ctx, testPost, input(replyTo, "reply", "b", "pw"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if r.ThreadID != root.ThreadID || r.SubThreadID == 0 {
				t.Fatalf("expected reply in thread %d, got %+v", root.ThreadID, r)
			}
		})
	}
}

func TestCreateComment_ReplyToUnknownThreadBecomesRoot(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	for _, replyTo := range []any{json.Number("999999"), "-5", "abc", true, json.Number("1.5")} {
		c, err := svc.CreateComment(ctx, testPost, input(replyTo, "x", "y", "pw"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if c.SubThreadID != 0 {
			t.Fatalf("replyTo %v: expected root, got %+v", replyTo, c)
		}
	}
}

func TestCreateComment_ReplyToThreadOfAnotherPost(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	other := "abcdef"
	svc.posts.(*fakeFetcher).posts[other] = ghost.Post{ID: other}
	ctx := context.Background()

	foreign, _ := svc.CreateComment(ctx, other, input(nil, "x", "y", "pw"))
	c, err := svc.CreateComment(ctx, testPost, input(itoa(foreign.ThreadID), "x", "y", "pw"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.SubThreadID != 0 || c.ThreadID == foreign.ThreadID {
		t.Fatalf("expected a new root, got %+v", c)
	}
}

func TestCreateComment_Validation(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	tests := []struct {
		name string
		in   *CreateInput
		want domain.Kind
	}{
		{"no body", nil, domain.KindInvalidBody},
		{"no content", &CreateInput{Author: strp("a"), Password: strp("p")}, domain.KindInvalidContent},
		{"no author", &CreateInput{Content: strp("c"), Password: strp("p")}, domain.KindInvalidAuthor},
		{"no password", &CreateInput{Content: strp("c"), Author: strp("a")}, domain.KindInvalidPassword},
		{"empty password", input(nil, "c", "a", ""), domain.KindInvalidPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateComment(ctx, testPost, tt.in)
			expectKind(t, err, tt.want)
		})
	}

	_, err := svc.CreateComment(ctx, "abcdef", input(nil, "c", "a", "p"))
	expectKind(t, err, domain.KindNoSuchPost)
}

func TestCreateComment_Truncates(t *testing.T) {
	svc, _ := newTestService(t, Limits{MaxCount: 10, MaxAuthor: 3, MaxContent: 4})
	c, err := svc.CreateComment(context.Background(), testPost, input(nil, "ねこねこねこ", "abcdef", "pw"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Content != "ねこねこ" || c.Author != "abc" {
		t.Fatalf("expected truncation by characters, got %q / %q", c.Content, c.Author)
	}
}

func TestCreateComment_CapNeverPartiallyInserts(t *testing.T) {
	svc, st := newTestService(t, Limits{MaxCount: 1, MaxAuthor: 32, MaxContent: 100})
	ctx := context.Background()

	if _, err := svc.CreateComment(ctx, testPost, input(nil, "a", "a", "pw")); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.CreateComment(ctx, testPost, input(nil, "b", "b", "pw"))
	expectKind(t, err, domain.KindTooManyComments)

	n, _ := st.CountComments(ctx, testPost)
	if n != 1 {
		t.Fatalf("expected 1 stored comment, got %d", n)
	}
}

func TestCreateComment_CapUnderConcurrency(t *testing.T) {
	svc, st := newTestService(t, Limits{MaxCount: 5, MaxAuthor: 32, MaxContent: 100})
	ctx := context.Background()
	_, _ = svc.GetPost(ctx, testPost)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CreateComment(ctx, testPost, input(nil, "x", "y", "pw"))
		}()
	}
	wg.Wait()
	if n, _ := st.CountComments(ctx, testPost); n != 5 {
		t.Fatalf("expected exactly 5 comments, got %d", n)
	}
	if svc.locks.size() != 0 {
		t.Fatalf("expected lock table to drain, got %d entries", svc.locks.size())
	}
}

func TestCreateComment_UnlimitedCap(t *testing.T) {
	svc, _ := newTestService(t, Limits{MaxCount: 0})
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateComment(context.Background(), testPost, input(nil, "x", "y", "pw")); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
}

func TestDeleteComment_RootWithoutReplies(t *testing.T) {
	svc, st := newTestService(t, DefaultLimits())
	ctx := context.Background()
	root, _ := svc.CreateComment(ctx, testPost, input(nil, "r", "a", "pw"))

	res, err := svc.DeleteComment(ctx, testPost, root.ID, strp("pw"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != root.ID || res.Tombstoned != "" {
		t.Fatalf("expected [%s], got %+v", root.ID, res)
	}
	if _, err := st.FindComment(ctx, root.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected root removed, got %v", err)
	}
}

func TestDeleteComment_RootWithRepliesIsTombstoned(t *testing.T) {
	svc, st := newTestService(t, DefaultLimits())
	ctx := context.Background()
	root, _ := svc.CreateComment(ctx, testPost, input(nil, "r", "a", "pw"))
	_, _ = svc.CreateComment(ctx, testPost, input(itoa(root.ThreadID), "reply", "b", "pw2"))

	res, err := svc.DeleteComment(ctx, testPost, root.ID, strp("pw"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Deleted) != 0 || res.Tombstoned != root.ID {
		t.Fatalf("expected tombstone of %s, got %+v", root.ID, res)
	}
	stored, err := st.FindComment(ctx, root.ID)
	if err != nil {
		t.Fatalf("expected root retained: %v", err)
	}
	if !stored.Deleted || stored.Author != "" || stored.Content != "" || stored.Password != "" {
		t.Fatalf("expected cleared tombstone, got %+v", stored)
	}

	_, err = svc.DeleteComment(ctx, testPost, root.ID, strp("pw"))
	expectKind(t, err, domain.KindNoSuchComment)
}

func TestDeleteComment_SoleReplyOfTombstonedRootCascades(t *testing.T) {
	svc, st := newTestService(t, DefaultLimits())
	ctx := context.Background()
	root, _ := svc.CreateComment(ctx, testPost, input(nil, "r", "a", "pw"))
	reply, _ := svc.CreateComment(ctx, testPost, input(itoa(root.ThreadID), "reply", "b", "pw2"))
	if _, err := svc.DeleteComment(ctx, testPost, root.ID, strp("pw")); err != nil {
		t.Fatalf("tombstone root: %v", err)
	}

	res, err := svc.DeleteComment(ctx, testPost, reply.ID, strp("pw2"))
	if err != nil {
		t.Fatalf("delete reply: %v", err)
	}
	if len(res.Deleted) != 2 || res.Deleted[0] != reply.ID || res.Deleted[1] != root.ID {
		t.Fatalf("expected [%s %s], got %v", reply.ID, root.ID, res.Deleted)
	}
	if n, _ := st.CountComments(ctx, testPost); n != 0 {
		t.Fatalf("expected empty post, got %d comments", n)
	}
}

func TestDeleteComment_ReplyWithSiblingsKeepsTombstone(t *testing.T) {
	svc, st := newTestService(t, DefaultLimits())
	ctx := context.Background()
	root, _ := svc.CreateComment(ctx, testPost, input(nil, "r", "a", "pw"))
	r1, _ := svc.CreateComment(ctx, testPost, input(itoa(root.ThreadID), "one", "b", "pw"))
	_, _ = svc.CreateComment(ctx, testPost, input(itoa(root.ThreadID), "two", "c", "pw"))
	_, _ = svc.DeleteComment(ctx, testPost, root.ID, strp("pw"))

	res, err := svc.DeleteComment(ctx, testPost, r1.ID, strp("pw"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != r1.ID {
		t.Fatalf("expected [%s], got %v", r1.ID, res.Deleted)
	}
	if _, err := st.FindComment(ctx, root.ID); err != nil {
		t.Fatalf("expected tombstoned root retained: %v", err)
	}
}

func TestDeleteComment_Authorization(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	c, _ := svc.CreateComment(ctx, testPost, input(nil, "r", "a", "pw"))

	_, err := svc.DeleteComment(ctx, testPost, c.ID, nil)
	expectKind(t, err, domain.KindInvalidPassword)

	_, err = svc.DeleteComment(ctx, testPost, c.ID, strp("wrong"))
	expectKind(t, err, domain.KindInvalidPassword)

	_, err = svc.DeleteComment(ctx, testPost, c.ID, strp("admin-pw"))
	expectKind(t, err, domain.KindInvalidPassword)

	res, err := svc.DeleteComment(ctx, testPost, c.ID, strp(credential.ClientDigest("admin-pw")))
	if err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if len(res.Deleted) != 1 {
		t.Fatalf("expected removal, got %+v", res)
	}
}

func TestDeleteComment_Lookup(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	other := "abcdef"
	svc.posts.(*fakeFetcher).posts[other] = ghost.Post{ID: other}
	c, _ := svc.CreateComment(ctx, other, input(nil, "r", "a", "pw"))

	_, err := svc.DeleteComment(ctx, "XYZ", c.ID, strp("pw"))
	expectKind(t, err, domain.KindInvalidPostID)

	_, err = svc.DeleteComment(ctx, testPost, "not-an-id", strp("pw"))
	expectKind(t, err, domain.KindInvalidCommentID)

	_, err = svc.DeleteComment(ctx, testPost, "65f0a1b2c3d4e5f60718293a", strp("pw"))
	expectKind(t, err, domain.KindNoSuchComment)

	_, err = svc.DeleteComment(ctx, testPost, c.ID, strp("pw"))
	expectKind(t, err, domain.KindNoSuchComment)
}

func TestScenario_CapTwo(t *testing.T) {
	ctx := context.Background()

	t.Run("reply deleted first", func(t *testing.T) {
		svc, st := newTestService(t, Limits{MaxCount: 2, MaxAuthor: 32, MaxContent: 1500, PageSize: 30})
		a, _ := svc.CreateComment(ctx, testPost, input(nil, "A", "a", "pa"))
		b, err := svc.CreateComment(ctx, testPost, input(itoa(a.ThreadID), "B", "b", "pb"))
		if err != nil {
			t.Fatalf("reply: %v", err)
		}
		_, err = svc.CreateComment(ctx, testPost, input(nil, "C", "c", "pc"))
		expectKind(t, err, domain.KindTooManyComments)

		res, err := svc.DeleteComment(ctx, testPost, b.ID, strp("pb"))
		if err != nil || len(res.Deleted) != 1 || res.Deleted[0] != b.ID {
			t.Fatalf("expected [B], got %+v (%v)", res, err)
		}
		res, err = svc.DeleteComment(ctx, testPost, a.ID, strp("pa"))
		if err != nil || len(res.Deleted) != 1 || res.Deleted[0] != a.ID {
			t.Fatalf("expected A removed outright, got %+v (%v)", res, err)
		}
		if n, _ := st.CountComments(ctx, testPost); n != 0 {
			t.Fatalf("expected no comments, got %d", n)
		}
	})

	t.Run("root deleted first", func(t *testing.T) {
		svc, _ := newTestService(t, Limits{MaxCount: 2, MaxAuthor: 32, MaxContent: 1500, PageSize: 30})
		a, _ := svc.CreateComment(ctx, testPost, input(nil, "A", "a", "pa"))
		b, _ := svc.CreateComment(ctx, testPost, input(itoa(a.ThreadID), "B", "b", "pb"))

		res, err := svc.DeleteComment(ctx, testPost, a.ID, strp("pa"))
		if err != nil || len(res.Deleted) != 0 || res.Tombstoned != a.ID {
			t.Fatalf("expected A tombstoned, got %+v (%v)", res, err)
		}
		// The tombstone no longer counts toward the cap.
		if _, err := svc.CreateComment(ctx, testPost, input(nil, "C", "c", "pc")); err != nil {
			t.Fatalf("expected room after tombstoning: %v", err)
		}
		res, err = svc.DeleteComment(ctx, testPost, b.ID, strp("pb"))
		if err != nil || len(res.Deleted) != 2 || res.Deleted[1] != a.ID {
			t.Fatalf("expected cascade [B A], got %+v (%v)", res, err)
		}
	})
}

func TestListComments(t *testing.T) {
	svc, _ := newTestService(t, Limits{MaxCount: 100, MaxAuthor: 32, MaxContent: 100, PageSize: 2})
	ctx := context.Background()
	root, _ := svc.CreateComment(ctx, testPost, input(nil, "r1", "a", "pw"))
	_, _ = svc.CreateComment(ctx, testPost, input(nil, "r2", "a", "pw"))
	_, _ = svc.CreateComment(ctx, testPost, input(itoa(root.ThreadID), "reply", "b", "pw"))

	page, err := svc.ListComments(ctx, testPost, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Current != 1 || page.Pagination.Max != 2 {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}
	if len(page.Comments) != 2 || page.Comments[0].Content != "r1" || page.Comments[1].Content != "reply" {
		t.Fatalf("expected thread order [r1 reply], got %+v", page.Comments)
	}
	for _, c := range page.Comments {
		if c.Password != "" {
			t.Fatal("expected passwords stripped")
		}
	}

	page, _ = svc.ListComments(ctx, testPost, "2")
	if page.Pagination.Current != 2 || len(page.Comments) != 1 || page.Comments[0].Content != "r2" {
		t.Fatalf("unexpected page 2 %+v", page)
	}

	page, _ = svc.ListComments(ctx, testPost, "-1")
	if page.Pagination.Current != 1 {
		t.Fatalf("expected fallback to page 1, got %d", page.Pagination.Current)
	}

	_, err = svc.ListComments(ctx, "Nope", "")
	expectKind(t, err, domain.KindInvalidPostID)

	empty, err := svc.ListComments(ctx, "abcdef", "")
	if err != nil || empty.Comments == nil || len(empty.Comments) != 0 || empty.Pagination.Max != 0 {
		t.Fatalf("expected empty page for unknown post, got %+v (%v)", empty, err)
	}
}

func TestListComments_CacheInvalidatedOnWrite(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	svc.cache = cache.NewTTLCache(time.Minute, nil)
	ctx := context.Background()

	_, _ = svc.CreateComment(ctx, testPost, input(nil, "one", "a", "pw"))
	first, _ := svc.ListComments(ctx, testPost, "1")
	if len(first.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(first.Comments))
	}
	c, _ := svc.CreateComment(ctx, testPost, input(nil, "two", "a", "pw"))
	second, _ := svc.ListComments(ctx, testPost, "1")
	if len(second.Comments) != 2 {
		t.Fatalf("expected cache invalidated after create, got %d comments", len(second.Comments))
	}
	_, _ = svc.DeleteComment(ctx, testPost, c.ID, strp("pw"))
	third, _ := svc.ListComments(ctx, testPost, "1")
	if len(third.Comments) != 1 {
		t.Fatalf("expected cache invalidated after delete, got %d comments", len(third.Comments))
	}
}

func TestParseReplyTo(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{json.Number("42"), 42, true},
		{"42", 42, true},
		{" 42 ", 42, true},
		{float64(42), 42, true},
		{int64(42), 42, true},
		{json.Number("0"), 0, false},
		{"-1", 0, false},
		{"4x", 0, false},
		{float64(1.5), 0, false},
		{nil, 0, false},
		{map[string]any{}, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseReplyTo(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("parseReplyTo(%#v): expected (%d,%v), got (%d,%v)", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
