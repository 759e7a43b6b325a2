// Package grpcapi exposes the comment operations over gRPC.
package grpcapi

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/example/kaede/services/comments/internal/domain"
	"github.com/example/kaede/services/comments/internal/thread"
)

const (
	ServiceName = "kaede.comments.v1.CommentService"
	ErrorDomain = "comments"
)

// Comments is the operation surface served over gRPC.
type Comments interface {
	GetPost(ctx context.Context, postID string) (domain.Post, error)
	GetLikes(ctx context.Context, postID string) (int64, error)
	IncrementLikes(ctx context.Context, postID string) (int64, error)
	ListComments(ctx context.Context, postID, rawPage string) (thread.Page, error)
	CreateComment(ctx context.Context, postID string, in *thread.CreateInput) (domain.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string, password *string) (thread.DeleteResult, error)
}

// CommentService implements the gRPC server.
type CommentService struct {
	Comments Comments
	Log      *zap.Logger
}

// Register adds the comment service and the standard health service to s.
func Register(s *grpc.Server, svc *CommentService) *health.Server {
	s.RegisterService(&serviceDesc, svc)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (s *CommentService) GetPost(ctx context.Context, req *PostRequest) (*PostResponse, error) {
	p, err := s.Comments.GetPost(ctx, req.PostID)
	if err != nil {
		return nil, s.toStatus("GetPost", err)
	}
	return &PostResponse{PostID: p.PostID, Likes: p.Likes}, nil
}

func (s *CommentService) GetLikes(ctx context.Context, req *PostRequest) (*LikesResponse, error) {
	likes, err := s.Comments.GetLikes(ctx, req.PostID)
	if err != nil {
		return nil, s.toStatus("GetLikes", err)
	}
	return &LikesResponse{Likes: likes}, nil
}

func (s *CommentService) IncrementLikes(ctx context.Context, req *PostRequest) (*LikesResponse, error) {
	likes, err := s.Comments.IncrementLikes(ctx, req.PostID)
	if err != nil {
		return nil, s.toStatus("IncrementLikes", err)
	}
	return &LikesResponse{Likes: likes}, nil
}

func (s *CommentService) ListComments(ctx context.Context, req *ListCommentsRequest) (*ListCommentsResponse, error) {
	page, err := s.Comments.ListComments(ctx, req.PostID, req.Page)
	if err != nil {
		return nil, s.toStatus("ListComments", err)
	}
	comments := page.Comments
	if comments == nil {
		comments = []domain.Comment{}
	}
	return &ListCommentsResponse{Pagination: page.Pagination, Comments: comments}, nil
}

func (s *CommentService) CreateComment(ctx context.Context, req *CreateCommentRequest) (*CommentResponse, error) {
	in := &thread.CreateInput{
		ReplyTo:  decodeReplyTo(req.ReplyTo),
		Content:  req.Content,
		Author:   req.Author,
		Password: req.Password,
	}
	c, err := s.Comments.CreateComment(ctx, req.PostID, in)
	if err != nil {
		return nil, s.toStatus("CreateComment", err)
	}
	return &CommentResponse{Comment: c}, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, req *DeleteCommentRequest) (*DeleteCommentResponse, error) {
	res, err := s.Comments.DeleteComment(ctx, req.PostID, req.CommentID, req.Password)
	if err != nil {
		return nil, s.toStatus("DeleteComment", err)
	}
	deleted := res.Deleted
	if deleted == nil {
		deleted = []string{}
	}
	return &DeleteCommentResponse{Deleted: deleted, Tombstoned: res.Tombstoned}, nil
}

func decodeReplyTo(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

var kindCodes = map[domain.Kind]codes.Code{
	domain.KindInvalidPostID:    codes.InvalidArgument,
	domain.KindInvalidCommentID: codes.InvalidArgument,
	domain.KindInvalidContent:   codes.InvalidArgument,
	domain.KindInvalidAuthor:    codes.InvalidArgument,
	domain.KindInvalidBody:      codes.InvalidArgument,
	domain.KindNoSuchPost:       codes.NotFound,
	domain.KindNoSuchComment:    codes.NotFound,
	domain.KindInvalidPassword:  codes.PermissionDenied,
	domain.KindTooManyComments:  codes.ResourceExhausted,
}

// toStatus maps expected kinds to a status carrying an ErrorInfo with the
// reason; anything else is logged and reported as Internal without detail.
func (s *CommentService) toStatus(method string, err error) error {
	kind, ok := domain.KindOf(err)
	if !ok {
		if s.Log != nil {
			s.Log.Error("grpc request failed", zap.String("method", method), zap.Error(err))
		}
		return status.Error(codes.Internal, "internal-server")
	}
	code, found := kindCodes[kind]
	if !found {
		code = codes.FailedPrecondition
	}
	st := status.New(code, string(kind))
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: string(kind), Domain: ErrorDomain}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

// ReasonFromError extracts the reason code of an expected failure from a
// status error returned by the service.
func ReasonFromError(err error) (string, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return "", false
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason(), true
		}
	}
	return "", false
}
