// Package store declares the storage contracts the command layer, the relay
// and the feeds depend on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist
var ErrNotFound = errors.New("store: not found")

// Reader provides point lookups and listings against committed state
type Reader interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	PostByID(ctx context.Context, id int64) (*models.Post, error)
	PostByTitle(ctx context.Context, title string) (*models.Post, error)
	CommentByID(ctx context.Context, id int64) (*models.Comment, error)
	PostVoteByID(ctx context.Context, id int64) (*models.PostVote, error)
	CommentVoteByID(ctx context.Context, id int64) (*models.CommentVote, error)

	// ListPosts returns non-deleted posts ordered by score then id, descending,
	// with authors loaded.
	ListPosts(ctx context.Context) ([]models.Post, error)
	// ListComments returns the non-deleted comments of a post ordered by id,
	// with authors loaded.
	ListComments(ctx context.Context, postID int64) ([]models.Comment, error)
	PostVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]models.PostVote, error)
	CommentVotesByUser(ctx context.Context, userID int64, commentIDs []int64) ([]models.CommentVote, error)
}

// Tx is a unit of work. Every write of a command goes through one Tx and
// commits or rolls back together with the facts it appended.
type Tx interface {
	Reader

	CreateUser(ctx context.Context, user *models.User) error
	CreatePost(ctx context.Context, post *models.Post) error
	CreateComment(ctx context.Context, comment *models.Comment) error
	SoftDeletePost(ctx context.Context, postID int64, at time.Time) (*models.Post, error)

	FindPostVote(ctx context.Context, userID, postID int64) (*models.PostVote, error)
	SavePostVote(ctx context.Context, vote *models.PostVote) error
	FindCommentVote(ctx context.Context, userID, commentID int64) (*models.CommentVote, error)
	SaveCommentVote(ctx context.Context, vote *models.CommentVote) error

	// AddPostScore atomically adds delta to the post score and returns the result.
	AddPostScore(ctx context.Context, postID, delta int64) (int64, error)
	// AddCommentScore atomically adds delta to the comment score and returns the result.
	AddCommentScore(ctx context.Context, commentID, delta int64) (int64, error)
	IncrementPostComments(ctx context.Context, postID int64) error
	// IncrementCommentComments increments the comment's reply count and
	// returns its parent comment id, if any.
	IncrementCommentComments(ctx context.Context, commentID int64) (*int64, error)

	// AppendFact enqueues a fact atomically with the rest of the transaction.
	AppendFact(ctx context.Context, fact events.Fact) error
}

// Store opens transactions and serves reads outside of them
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Receipt identifies one lease of a fact. A fact re-leased by another
// poller gets a new receipt and the old one can no longer archive it.
type Receipt struct {
	FactID    int64
	ReadCount int
}

// LeasedFact is a fact returned by Poll
type LeasedFact struct {
	Receipt    Receipt
	Kind       events.Kind
	Payload    []byte
	EnqueuedAt time.Time
}

// Queue is the consumer side of the durable event log
type Queue interface {
	// Poll leases up to max visible facts for the lease duration, oldest first.
	Poll(ctx context.Context, lease time.Duration, max int) ([]LeasedFact, error)
	// Archive moves a leased fact out of the active set. It reports false,
	// without error, when the receipt's lease was lost to another poller.
	Archive(ctx context.Context, receipt Receipt) (bool, error)
}

// Waker blocks until new facts may be available
type Waker interface {
	Wait(ctx context.Context, max time.Duration)
}
