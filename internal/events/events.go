package events

import (
	"encoding/json"
	"fmt"

	"github.com/thevtm/baker-news/internal/models"
)

// Event is a fact joined against current row state at relay time.
// Events are values and are never persisted.
type Event interface {
	Kind() Kind
}

// PostCreated carries a new post and its author
type PostCreated struct {
	Post   models.Post `json:"post"`
	Author models.User `json:"author"`
}

// PostDeleted carries the soft-deleted post
type PostDeleted struct {
	Post models.Post `json:"post"`
}

// PostVoted carries the voted post with its current score and the vote row
type PostVoted struct {
	Post models.Post     `json:"post"`
	Vote models.PostVote `json:"vote"`
}

// CommentCreated carries a new comment and its author
type CommentCreated struct {
	Comment models.Comment `json:"comment"`
	Author  models.User    `json:"author"`
}

// CommentVoted carries the voted comment with its current score and the vote row
type CommentVoted struct {
	Comment models.Comment     `json:"comment"`
	Vote    models.CommentVote `json:"vote"`
}

func (PostCreated) Kind() Kind    { return KindPostCreated }
func (PostDeleted) Kind() Kind    { return KindPostDeleted }
func (PostVoted) Kind() Kind      { return KindPostVoted }
func (CommentCreated) Kind() Kind { return KindCommentCreated }
func (CommentVoted) Kind() Kind   { return KindCommentVoted }

// envelope is the wire form used when events cross process boundaries
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal encodes an event together with its kind.
func Marshal(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Kind(), err)
	}
	return json.Marshal(envelope{Kind: ev.Kind(), Data: data})
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Kind {
	case KindPostCreated:
		var e PostCreated
		err = decodeInto(env, &e)
		ev = e
	case KindPostDeleted:
		var e PostDeleted
		err = decodeInto(env, &e)
		ev = e
	case KindPostVoted:
		var e PostVoted
		err = decodeInto(env, &e)
		ev = e
	case KindCommentCreated:
		var e CommentCreated
		err = decodeInto(env, &e)
		ev = e
	case KindCommentVoted:
		var e CommentVoted
		err = decodeInto(env, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeInto(env envelope, v interface{}) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Kind, err)
	}
	return nil
}
