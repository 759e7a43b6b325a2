package domain

import "regexp"

var (
	postIDPattern    = regexp.MustCompile(`^[a-f0-9]{1,24}$`)
	commentIDPattern = regexp.MustCompile(`^[a-f0-9]{24}$`)
)

// Post is the local record of an external CMS post.
type Post struct {
	PostID string `json:"postId"`
	Likes  int64  `json:"likes"`
}

// Comment is one entry of a two-level thread. SubThreadID is 0 for the root.
type Comment struct {
	ID          string `json:"_id"`
	PostID      string `json:"postId"`
	ThreadID    int64  `json:"threadId"`
	SubThreadID int64  `json:"subThreadId"`
	Author      string `json:"author"`
	Content     string `json:"content"`
	Password    string `json:"-"`
	Date        int64  `json:"date"` // unix milliseconds
	Deleted     bool   `json:"deleted,omitempty"`
}

func (c Comment) IsRoot() bool {
	return c.SubThreadID == 0
}

// Public returns a copy without the stored credential.
func (c Comment) Public() Comment {
	c.Password = ""
	return c
}

// ValidPostID matches the external CMS id format (lowercase hex, up to 24).
func ValidPostID(id string) bool {
	return postIDPattern.MatchString(id)
}

// ValidCommentID matches a store-assigned 24-hex id.
func ValidCommentID(id string) bool {
	return commentIDPattern.MatchString(id)
}
