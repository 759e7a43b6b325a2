package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/kaede/services/comments/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		post_id TEXT PRIMARY KEY,
		likes   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id            CHAR(24) PRIMARY KEY,
		post_id       TEXT    NOT NULL,
		thread_id     BIGINT  NOT NULL,
		sub_thread_id BIGINT  NOT NULL DEFAULT 0,
		author        TEXT    NOT NULL DEFAULT '',
		content       TEXT    NOT NULL DEFAULT '',
		password      TEXT    NOT NULL DEFAULT '',
		date          BIGINT  NOT NULL,
		deleted       BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS comments_thread_idx ON comments (post_id, thread_id, sub_thread_id)`,
}

const commentColumns = `id, post_id, thread_id, sub_thread_id, author, content, password, date, deleted`

// PostgresStore persists posts and comments in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) FindPost(ctx context.Context, postID string) (domain.Post, error) {
	var p domain.Post
	err := s.pool.QueryRow(ctx, `SELECT post_id, likes FROM posts WHERE post_id = $1`, postID).
		Scan(&p.PostID, &p.Likes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) InsertPost(ctx context.Context, p domain.Post) (domain.Post, error) {
	// The no-op update makes RETURNING yield the stored row on conflict.
	const q = `INSERT INTO posts (post_id, likes) VALUES ($1, $2)
	           ON CONFLICT (post_id) DO UPDATE SET post_id = EXCLUDED.post_id
	           RETURNING post_id, likes`
	var out domain.Post
	err := s.pool.QueryRow(ctx, q, p.PostID, p.Likes).Scan(&out.PostID, &out.Likes)
	return out, err
}

func (s *PostgresStore) IncrementLikes(ctx context.Context, postID string) (int64, error) {
	var likes int64
	err := s.pool.QueryRow(ctx,
		`UPDATE posts SET likes = likes + 1 WHERE post_id = $1 RETURNING likes`, postID).Scan(&likes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return likes, err
}

func (s *PostgresStore) CountComments(ctx context.Context, postID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM comments WHERE post_id = $1`, postID).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountLiveComments(ctx context.Context, postID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM comments WHERE post_id = $1 AND NOT deleted`, postID).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListComments(ctx context.Context, postID string, skip, limit int) ([]domain.Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE post_id = $1
	      ORDER BY thread_id, sub_thread_id, id OFFSET $2`
	args := []any{postID, skip}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	c.ID = newCommentID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.PostID, c.ThreadID, c.SubThreadID, c.Author, c.Content, c.Password, c.Date, c.Deleted)
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (s *PostgresStore) FindComment(ctx context.Context, id string) (domain.Comment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) ThreadExists(ctx context.Context, postID string, threadID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM comments WHERE post_id = $1 AND thread_id = $2)`,
		postID, threadID).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) FindRoot(ctx context.Context, postID string, threadID int64) (domain.Comment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE post_id = $1 AND thread_id = $2 AND sub_thread_id = 0 LIMIT 1`,
		postID, threadID)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) HasOtherReplies(ctx context.Context, postID string, threadID, excludeSub int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM comments
		                WHERE post_id = $1 AND thread_id = $2
		                  AND sub_thread_id <> 0 AND sub_thread_id <> $3)`,
		postID, threadID, excludeSub).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) Tombstone(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE comments SET author = '', content = '', password = '', deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(&c.ID, &c.PostID, &c.ThreadID, &c.SubThreadID,
		&c.Author, &c.Content, &c.Password, &c.Date, &c.Deleted)
	return c, err
}
