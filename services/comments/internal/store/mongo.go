package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/example/kaede/services/comments/internal/domain"
)

const (
	postsCollection    = "posts"
	commentsCollection = "comments"
)

type postDoc struct {
	PostID string `bson:"postId"`
	Likes  int64  `bson:"likes"`
}

type commentDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	PostID      string             `bson:"postId"`
	ThreadID    int64              `bson:"threadId"`
	SubThreadID int64              `bson:"subThreadId"`
	Author      string             `bson:"author"`
	Content     string             `bson:"content"`
	Password    string             `bson:"password"`
	Date        int64              `bson:"date"`
	Deleted     bool               `bson:"deleted,omitempty"`
}

func (d commentDoc) toDomain() domain.Comment {
	return domain.Comment{
		ID:          d.ID.Hex(),
		PostID:      d.PostID,
		ThreadID:    d.ThreadID,
		SubThreadID: d.SubThreadID,
		Author:      d.Author,
		Content:     d.Content,
		Password:    d.Password,
		Date:        d.Date,
		Deleted:     d.Deleted,
	}
}

// MongoStore persists posts and comments in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	posts    *mongo.Collection
	comments *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		posts:    db.Collection(postsCollection),
		comments: db.Collection(commentsCollection),
	}
}

// EnsureIndexes creates the unique post index and the thread index used by
// listing and reply lookups.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "postId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("posts index: %w", err)
	}
	if _, err := s.comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "postId", Value: 1}, {Key: "threadId", Value: 1}, {Key: "subThreadId", Value: 1}},
	}); err != nil {
		return fmt.Errorf("comments index: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) FindPost(ctx context.Context, postID string) (domain.Post, error) {
	var d postDoc
	err := s.posts.FindOne(ctx, bson.M{"postId": postID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Post{}, ErrNotFound
	}
	if err != nil {
		return domain.Post{}, err
	}
	return domain.Post{PostID: d.PostID, Likes: d.Likes}, nil
}

func (s *MongoStore) InsertPost(ctx context.Context, p domain.Post) (domain.Post, error) {
	_, err := s.posts.InsertOne(ctx, postDoc{PostID: p.PostID, Likes: p.Likes})
	if mongo.IsDuplicateKeyError(err) {
		return s.FindPost(ctx, p.PostID)
	}
	if err != nil {
		return domain.Post{}, err
	}
	return p, nil
}

func (s *MongoStore) IncrementLikes(ctx context.Context, postID string) (int64, error) {
	var d postDoc
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"postId": postID},
		bson.M{"$inc": bson.M{"likes": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return d.Likes, nil
}

func (s *MongoStore) CountComments(ctx context.Context, postID string) (int64, error) {
	return s.comments.CountDocuments(ctx, bson.M{"postId": postID})
}

func (s *MongoStore) CountLiveComments(ctx context.Context, postID string) (int64, error) {
	return s.comments.CountDocuments(ctx, bson.M{"postId": postID, "deleted": bson.M{"$ne": true}})
}

func (s *MongoStore) ListComments(ctx context.Context, postID string, skip, limit int) ([]domain.Comment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "threadId", Value: 1}, {Key: "subThreadId", Value: 1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.comments.Find(ctx, bson.M{"postId": postID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (s *MongoStore) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	id := primitive.NewObjectID()
	d := commentDoc{
		ID:          id,
		PostID:      c.PostID,
		ThreadID:    c.ThreadID,
		SubThreadID: c.SubThreadID,
		Author:      c.Author,
		Content:     c.Content,
		Password:    c.Password,
		Date:        c.Date,
		Deleted:     c.Deleted,
	}
	if _, err := s.comments.InsertOne(ctx, d); err != nil {
		return domain.Comment{}, err
	}
	c.ID = id.Hex()
	return c, nil
}

func (s *MongoStore) FindComment(ctx context.Context, id string) (domain.Comment, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Comment{}, ErrNotFound
	}
	var d commentDoc
	err = s.comments.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Comment{}, ErrNotFound
	}
	if err != nil {
		return domain.Comment{}, err
	}
	return d.toDomain(), nil
}

func (s *MongoStore) ThreadExists(ctx context.Context, postID string, threadID int64) (bool, error) {
	n, err := s.comments.CountDocuments(ctx,
		bson.M{"postId": postID, "threadId": threadID},
		options.Count().SetLimit(1))
	return n > 0, err
}

func (s *MongoStore) FindRoot(ctx context.Context, postID string, threadID int64) (domain.Comment, error) {
	var d commentDoc
	err := s.comments.FindOne(ctx, bson.M{"postId": postID, "threadId": threadID, "subThreadId": 0}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Comment{}, ErrNotFound
	}
	if err != nil {
		return domain.Comment{}, err
	}
	return d.toDomain(), nil
}

func (s *MongoStore) HasOtherReplies(ctx context.Context, postID string, threadID, excludeSub int64) (bool, error) {
	n, err := s.comments.CountDocuments(ctx, bson.M{
		"postId":      postID,
		"threadId":    threadID,
		"subThreadId": bson.M{"$nin": bson.A{int64(0), excludeSub}},
	}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *MongoStore) Tombstone(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.comments.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"author":   "",
		"content":  "",
		"password": "",
		"deleted":  true,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteComment(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.comments.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
