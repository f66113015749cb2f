package relay

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
)

// ErrInvariant marks a fact that can never be rehydrated as stored: a
// referenced row is gone, or the fact itself is unreadable. Rows in this
// domain are only soft deleted, so this indicates corruption.
var ErrInvariant = errors.New("relay: invariant violated")

// Rehydrator turns id-only facts into events carrying current row state
type Rehydrator struct {
	reader  store.Reader
	authors *lru.Cache[int64, models.User]
}

// NewRehydrator creates a rehydrator that caches up to cacheSize authors
func NewRehydrator(reader store.Reader, cacheSize int) (*Rehydrator, error) {
	authors, err := lru.New[int64, models.User](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create author cache: %w", err)
	}
	return &Rehydrator{reader: reader, authors: authors}, nil
}

// Rehydrate decodes the payload for kind and re-reads every row it names
func (r *Rehydrator) Rehydrate(ctx context.Context, kind events.Kind, payload []byte) (events.Event, error) {
	fact, err := events.DecodeFact(kind, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
	}

	switch f := fact.(type) {
	case *events.PostCreatedFact:
		post, err := r.reader.PostByID(ctx, f.PostID)
		if err != nil {
			return nil, required(err, "post", f.PostID)
		}
		author, err := r.author(ctx, f.AuthorID)
		if err != nil {
			return nil, err
		}
		return events.PostCreated{Post: *post, Author: author}, nil

	case *events.PostDeletedFact:
		post, err := r.reader.PostByID(ctx, f.PostID)
		if err != nil {
			return nil, required(err, "post", f.PostID)
		}
		return events.PostDeleted{Post: *post}, nil

	case *events.PostVotedFact:
		vote, err := r.reader.PostVoteByID(ctx, f.PostVoteID)
		if err != nil {
			return nil, required(err, "post vote", f.PostVoteID)
		}
		post, err := r.reader.PostByID(ctx, f.PostID)
		if err != nil {
			return nil, required(err, "post", f.PostID)
		}
		return events.PostVoted{Post: *post, Vote: *vote}, nil

	case *events.CommentCreatedFact:
		comment, err := r.reader.CommentByID(ctx, f.CommentID)
		if err != nil {
			return nil, required(err, "comment", f.CommentID)
		}
		author, err := r.author(ctx, f.AuthorID)
		if err != nil {
			return nil, err
		}
		return events.CommentCreated{Comment: *comment, Author: author}, nil

	case *events.CommentVotedFact:
		vote, err := r.reader.CommentVoteByID(ctx, f.CommentVoteID)
		if err != nil {
			return nil, required(err, "comment vote", f.CommentVoteID)
		}
		comment, err := r.reader.CommentByID(ctx, f.CommentID)
		if err != nil {
			return nil, required(err, "comment", f.CommentID)
		}
		return events.CommentVoted{Comment: *comment, Vote: *vote}, nil
	}

	return nil, fmt.Errorf("%w: no handler for %s facts", ErrInvariant, kind)
}

// author loads a user row. Usernames never change, so rows are cached.
func (r *Rehydrator) author(ctx context.Context, id int64) (models.User, error) {
	if u, ok := r.authors.Get(id); ok {
		return u, nil
	}
	u, err := r.reader.UserByID(ctx, id)
	if err != nil {
		return models.User{}, required(err, "user", id)
	}
	r.authors.Add(id, *u)
	return *u, nil
}

func required(err error, what string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %d is missing", ErrInvariant, what, id)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}
