package domain

import "errors"

// Kind is the machine-readable reason of an expected, client-caused failure.
type Kind string

const (
	KindInvalidPostID    Kind = "invalid-postid"
	KindNoSuchPost       Kind = "no-such-post"
	KindInvalidCommentID Kind = "invalid-commentid"
	KindNoSuchComment    Kind = "no-such-comment"
	KindInvalidPassword  Kind = "invalid-password"
	KindInvalidContent   Kind = "invalid-content"
	KindInvalidAuthor    Kind = "invalid-author"
	KindTooManyComments  Kind = "too-many-comments"
	KindInvalidBody      Kind = "invalid-body"
)

// Error is an expected failure. It is reported verbatim and never logged as an
// operational error.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string {
	return string(e.Kind)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidPostID    = &Error{Kind: KindInvalidPostID}
	ErrNoSuchPost       = &Error{Kind: KindNoSuchPost}
	ErrInvalidCommentID = &Error{Kind: KindInvalidCommentID}
	ErrNoSuchComment    = &Error{Kind: KindNoSuchComment}
	ErrInvalidPassword  = &Error{Kind: KindInvalidPassword}
	ErrInvalidContent   = &Error{Kind: KindInvalidContent}
	ErrInvalidAuthor    = &Error{Kind: KindInvalidAuthor}
	ErrTooManyComments  = &Error{Kind: KindTooManyComments}
	ErrInvalidBody      = &Error{Kind: KindInvalidBody}
)

// KindOf reports the kind of an expected failure anywhere in err's chain.
// ok is false for unexpected failures.
func KindOf(err error) (kind Kind, ok bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
