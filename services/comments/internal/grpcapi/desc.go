package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// CommentServiceServer is the server contract behind serviceDesc.
type CommentServiceServer interface {
	GetPost(context.Context, *PostRequest) (*PostResponse, error)
	GetLikes(context.Context, *PostRequest) (*LikesResponse, error)
	IncrementLikes(context.Context, *PostRequest) (*LikesResponse, error)
	ListComments(context.Context, *ListCommentsRequest) (*ListCommentsResponse, error)
	CreateComment(context.Context, *CreateCommentRequest) (*CommentResponse, error)
	DeleteComment(context.Context, *DeleteCommentRequest) (*DeleteCommentResponse, error)
}

var _ CommentServiceServer = (*CommentService)(nil)

func unary[Req, Resp any](method string, call func(CommentServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CommentServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CommentServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetPost", CommentServiceServer.GetPost),
		unary("GetLikes", CommentServiceServer.GetLikes),
		unary("IncrementLikes", CommentServiceServer.IncrementLikes),
		unary("ListComments", CommentServiceServer.ListComments),
		unary("CreateComment", CommentServiceServer.CreateComment),
		unary("DeleteComment", CommentServiceServer.DeleteComment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kaede/comments/v1/comments.json",
}

// Client calls the comment service over the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPost(ctx context.Context, in *PostRequest, opts ...grpc.CallOption) (*PostResponse, error) {
	return invoke[PostResponse](ctx, c, "GetPost", in, opts)
}

func (c *Client) GetLikes(ctx context.Context, in *PostRequest, opts ...grpc.CallOption) (*LikesResponse, error) {
	return invoke[LikesResponse](ctx, c, "GetLikes", in, opts)
}

func (c *Client) IncrementLikes(ctx context.Context, in *PostRequest, opts ...grpc.CallOption) (*LikesResponse, error) {
	return invoke[LikesResponse](ctx, c, "IncrementLikes", in, opts)
}

func (c *Client) ListComments(ctx context.Context, in *ListCommentsRequest, opts ...grpc.CallOption) (*ListCommentsResponse, error) {
	return invoke[ListCommentsResponse](ctx, c, "ListComments", in, opts)
}

func (c *Client) CreateComment(ctx context.Context, in *CreateCommentRequest, opts ...grpc.CallOption) (*CommentResponse, error) {
	return invoke[CommentResponse](ctx, c, "CreateComment", in, opts)
}

func (c *Client) DeleteComment(ctx context.Context, in *DeleteCommentRequest, opts ...grpc.CallOption) (*DeleteCommentResponse, error) {
	return invoke[DeleteCommentResponse](ctx, c, "DeleteComment", in, opts)
}
