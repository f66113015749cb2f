package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
)

// countingReader counts user lookups
type countingReader struct {
	store.Reader
	userLookups int
}

func (r *countingReader) UserByID(ctx context.Context, id int64) (*models.User, error) {
	r.userLookups++
	return r.Reader.UserByID(ctx, id)
}

func encode(t *testing.T, f events.Fact) (events.Kind, []byte) {
	t.Helper()
	kind, payload, err := events.EncodeFact(f)
	if err != nil {
		t.Fatalf("EncodeFact() error = %v", err)
	}
	return kind, payload
}

func TestRehydrator_CachesAuthors(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	first := f.post(alice, "First post")
	second := f.post(alice, "Second post")

	reader := &countingReader{Reader: f.store}
	r, err := NewRehydrator(reader, 4)
	if err != nil {
		t.Fatalf("NewRehydrator() error = %v", err)
	}

	for _, p := range []*models.Post{first, second} {
		kind, payload := encode(t, events.PostCreatedFact{PostID: p.ID, AuthorID: alice.ID})
		ev, err := r.Rehydrate(f.ctx, kind, payload)
		if err != nil {
			t.Fatalf("Rehydrate() error = %v", err)
		}
		if got := ev.(events.PostCreated).Author.Username; got != "alice" {
			t.Errorf("author = %q, want %q", got, "alice")
		}
	}

	if reader.userLookups != 1 {
		t.Errorf("user lookups = %d, want 1", reader.userLookups)
	}
}

func TestRehydrator_Errors(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")

	r, err := NewRehydrator(f.store, 4)
	if err != nil {
		t.Fatalf("NewRehydrator() error = %v", err)
	}

	tests := []struct {
		name    string
		kind    events.Kind
		payload []byte
	}{
		{"unknown kind", events.Kind("user_renamed"), []byte(`{}`)},
		{"bad payload", events.KindPostCreated, []byte(`{"postId":"x"}`)},
		{"missing post", events.KindPostDeleted, []byte(`{"postId":999}`)},
		{"missing author", events.KindPostCreated, []byte(`{"postId":1,"authorId":999}`)},
		{"missing post vote", events.KindPostVoted, []byte(`{"postVoteId":999,"postId":1,"userId":1}`)},
		{"missing comment", events.KindCommentCreated, []byte(`{"commentId":999,"authorId":1}`)},
		{"missing comment vote", events.KindCommentVoted, []byte(`{"commentVoteId":999,"commentId":1,"userId":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Rehydrate(f.ctx, tt.kind, tt.payload); !errors.Is(err, ErrInvariant) {
				t.Errorf("Rehydrate(%s, %s) error = %v, want %v", tt.kind, tt.payload, err, ErrInvariant)
			}
		})
	}

	kind, payload := encode(t, events.PostDeletedFact{PostID: post.ID})
	ev, err := r.Rehydrate(f.ctx, kind, payload)
	if err != nil {
		t.Fatalf("Rehydrate(post deleted) error = %v", err)
	}
	if got := ev.(events.PostDeleted).Post.ID; got != post.ID {
		t.Errorf("PostDeleted.Post.ID = %d, want %d", got, post.ID)
	}
}
