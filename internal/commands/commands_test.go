package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store/memstore"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memstore.Store
	cmds  *Commands
}

func newFixture(t *testing.T) *fixture {
	s := memstore.New()
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: s,
		cmds:  New(s, zaptest.NewLogger(t)),
	}
}

func (f *fixture) user(name string) *models.User {
	f.t.Helper()
	u, err := f.cmds.CreateUser(f.ctx, CreateUserInput{Username: name})
	if err != nil {
		f.t.Fatalf("CreateUser(%q) error = %v", name, err)
	}
	return u
}

func (f *fixture) post(author *models.User, title string) *models.Post {
	f.t.Helper()
	p, err := f.cmds.CreatePost(f.ctx, CreatePostInput{Title: title, URL: "https://example.com/" + strings.ReplaceAll(title, " ", "-"), AuthorID: author.ID})
	if err != nil {
		f.t.Fatalf("CreatePost(%q) error = %v", title, err)
	}
	return p
}

func (f *fixture) comment(author *models.User, postID, parentID *int64) *models.Comment {
	f.t.Helper()
	c, err := f.cmds.CreateComment(f.ctx, CreateCommentInput{Content: "a reply", AuthorID: author.ID, PostID: postID, ParentCommentID: parentID})
	if err != nil {
		f.t.Fatalf("CreateComment() error = %v", err)
	}
	return c
}

func (f *fixture) postRow(id int64) *models.Post {
	f.t.Helper()
	p, err := f.store.PostByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("PostByID(%d) error = %v", id, err)
	}
	return p
}

func (f *fixture) commentRow(id int64) *models.Comment {
	f.t.Helper()
	c, err := f.store.CommentByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("CommentByID(%d) error = %v", id, err)
	}
	return c
}

func (f *fixture) facts() []events.Fact {
	f.t.Helper()
	facts, err := f.store.Facts()
	if err != nil {
		f.t.Fatalf("Facts() error = %v", err)
	}
	return facts
}

func ptr(v int64) *int64 { return &v }

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	cerr, ok := AsError(err)
	if !ok {
		t.Fatalf("error = %v, want command error with code %s", err, code)
	}
	if cerr.Code != code {
		t.Errorf("error code = %s (%q), want %s", cerr.Code, cerr.Message, code)
	}
}

func TestVotePostConvergesToLastVote(t *testing.T) {
	sequences := []struct {
		name  string
		votes []models.VoteType
	}{
		{"single up", []models.VoteType{models.UpVote}},
		{"repeated up", []models.VoteType{models.UpVote, models.UpVote, models.UpVote}},
		{"up then down", []models.VoteType{models.UpVote, models.DownVote}},
		{"down repeated then none", []models.VoteType{models.DownVote, models.DownVote, models.NoVote}},
		{"flip flop", []models.VoteType{models.UpVote, models.DownVote, models.UpVote, models.DownVote, models.DownVote}},
		{"none first", []models.VoteType{models.NoVote, models.NoVote, models.UpVote}},
	}

	for _, tt := range sequences {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.user("alice")
			post := f.post(alice, "Hello world")

			var last *VotePostResult
			for _, v := range tt.votes {
				res, err := f.cmds.VotePost(f.ctx, VotePostInput{UserID: alice.ID, PostID: post.ID, VoteType: v})
				if err != nil {
					t.Fatalf("VotePost(%s) error = %v", v, err)
				}
				last = res
			}

			want := tt.votes[len(tt.votes)-1].Weight()
			if got := f.postRow(post.ID).Score; got != want {
				t.Errorf("post score = %d, want %d", got, want)
			}
			if last.NewScore != want {
				t.Errorf("VotePost().NewScore = %d, want %d", last.NewScore, want)
			}
			if last.Vote.VoteType != tt.votes[len(tt.votes)-1] {
				t.Errorf("VotePost().Vote.VoteType = %s, want %s", last.Vote.VoteType, tt.votes[len(tt.votes)-1])
			}

			votes, _ := f.store.PostVotesByUser(f.ctx, alice.ID, []int64{post.ID})
			if len(votes) != 1 {
				t.Errorf("stored %d vote rows for (user, post), want 1", len(votes))
			}
		})
	}
}

func TestVotePostRoundTripRestoresScore(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	post := f.post(alice, "Hello world")

	if _, err := f.cmds.VotePost(f.ctx, VotePostInput{UserID: bob.ID, PostID: post.ID, VoteType: models.DownVote}); err != nil {
		t.Fatalf("VotePost() error = %v", err)
	}
	before := f.postRow(post.ID).Score

	up, err := f.cmds.VotePost(f.ctx, VotePostInput{UserID: alice.ID, PostID: post.ID, VoteType: models.UpVote})
	if err != nil {
		t.Fatalf("VotePost(up) error = %v", err)
	}
	if up.NewScore != before+1 {
		t.Errorf("score after up = %d, want %d", up.NewScore, before+1)
	}

	none, err := f.cmds.VotePost(f.ctx, VotePostInput{UserID: alice.ID, PostID: post.ID, VoteType: models.NoVote})
	if err != nil {
		t.Fatalf("VotePost(none) error = %v", err)
	}
	if none.NewScore != before {
		t.Errorf("score after none = %d, want %d", none.NewScore, before)
	}
	if none.Vote.ID != up.Vote.ID {
		t.Errorf("vote row id changed from %d to %d, want the row updated in place", up.Vote.ID, none.Vote.ID)
	}
}

func TestVotePostAppendsFact(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")

	res, err := f.cmds.VotePost(f.ctx, VotePostInput{UserID: alice.ID, PostID: post.ID, VoteType: models.UpVote})
	if err != nil {
		t.Fatalf("VotePost() error = %v", err)
	}

	want := []events.Fact{
		&events.PostCreatedFact{PostID: post.ID, AuthorID: alice.ID},
		&events.PostVotedFact{PostVoteID: res.Vote.ID, PostID: post.ID, UserID: alice.ID},
	}
	if diff := cmp.Diff(want, f.facts()); diff != "" {
		t.Errorf("facts mismatch (-want +got):\n%s", diff)
	}
}

func TestVotePostRejectsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")
	gone := f.post(alice, "Soon deleted")
	if _, err := f.cmds.DeletePost(f.ctx, DeletePostInput{PostID: gone.ID}); err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	factsBefore := len(f.facts())

	tests := []struct {
		name  string
		input VotePostInput
		code  Code
	}{
		{"zero user id", VotePostInput{UserID: 0, PostID: post.ID, VoteType: models.UpVote}, CodeInvalidInput},
		{"negative post id", VotePostInput{UserID: alice.ID, PostID: -3, VoteType: models.UpVote}, CodeInvalidInput},
		{"unknown vote type", VotePostInput{UserID: alice.ID, PostID: post.ID, VoteType: "sideways"}, CodeInvalidInput},
		{"missing user", VotePostInput{UserID: 999, PostID: post.ID, VoteType: models.UpVote}, CodeNotFound},
		{"missing post", VotePostInput{UserID: alice.ID, PostID: 999, VoteType: models.UpVote}, CodeNotFound},
		{"deleted post", VotePostInput{UserID: alice.ID, PostID: gone.ID, VoteType: models.UpVote}, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cmds.VotePost(f.ctx, tt.input)
			wantCode(t, err, tt.code)
		})
	}

	if got := f.postRow(post.ID).Score; got != 0 {
		t.Errorf("post score = %d after rejected votes, want 0", got)
	}
	if got := len(f.facts()); got != factsBefore {
		t.Errorf("facts = %d after rejected votes, want %d", got, factsBefore)
	}
}

func TestVoteCommentScoresAcrossUsers(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	post := f.post(alice, "Hello world")
	comment := f.comment(alice, ptr(post.ID), nil)

	steps := []struct {
		user *models.User
		vote models.VoteType
		want int64
	}{
		{alice, models.UpVote, 1},
		{bob, models.UpVote, 2},
		{carol, models.DownVote, 1},
		{bob, models.DownVote, -1},
		{alice, models.NoVote, -2},
	}

	for i, step := range steps {
		res, err := f.cmds.VoteComment(f.ctx, VoteCommentInput{UserID: step.user.ID, CommentID: comment.ID, VoteType: step.vote})
		if err != nil {
			t.Fatalf("step %d: VoteComment() error = %v", i, err)
		}
		if res.NewScore != step.want {
			t.Errorf("step %d: VoteComment().NewScore = %d, want %d", i, res.NewScore, step.want)
		}
	}

	if got := f.commentRow(comment.ID).Score; got != -2 {
		t.Errorf("comment score = %d, want -2", got)
	}
	if got := f.postRow(post.ID).Score; got != 0 {
		t.Errorf("post score = %d, want 0 after comment votes", got)
	}

	if _, err := f.cmds.VoteComment(f.ctx, VoteCommentInput{UserID: alice.ID, CommentID: 999, VoteType: models.UpVote}); err == nil {
		t.Error("Expected error for missing comment")
	} else {
		wantCode(t, err, CodeNotFound)
	}
}

func TestCreateCommentCascade(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")
	other := f.post(alice, "Another post")
	sibling := f.comment(alice, ptr(post.ID), nil)

	c1 := f.comment(alice, ptr(post.ID), nil)
	c2 := f.comment(alice, nil, ptr(c1.ID))

	if got := f.postRow(post.ID).CommentsCount; got != 3 {
		t.Errorf("post comments = %d, want 3", got)
	}
	if got := f.commentRow(c1.ID).CommentsCount; got != 1 {
		t.Errorf("c1 comments = %d, want 1", got)
	}
	if got := f.commentRow(c2.ID).CommentsCount; got != 0 {
		t.Errorf("c2 comments = %d, want 0", got)
	}
	if c2.PostID != post.ID {
		t.Errorf("reply post id = %d, want %d", c2.PostID, post.ID)
	}

	// A reply at depth d increments the post and each of the d ancestors once.
	chain := []*models.Comment{c1, c2}
	for depth := 3; depth <= 6; depth++ {
		parent := chain[len(chain)-1]
		postBefore := f.postRow(post.ID).CommentsCount
		before := make([]int64, len(chain))
		for i, c := range chain {
			before[i] = f.commentRow(c.ID).CommentsCount
		}

		reply := f.comment(alice, nil, ptr(parent.ID))

		if got := f.postRow(post.ID).CommentsCount; got != postBefore+1 {
			t.Errorf("depth %d: post comments = %d, want %d", depth, got, postBefore+1)
		}
		for i, c := range chain {
			if got := f.commentRow(c.ID).CommentsCount; got != before[i]+1 {
				t.Errorf("depth %d: ancestor %d comments = %d, want %d", depth, c.ID, got, before[i]+1)
			}
		}
		chain = append(chain, reply)
	}

	if got := f.commentRow(sibling.ID).CommentsCount; got != 0 {
		t.Errorf("sibling comments = %d, want 0", got)
	}
	if got := f.postRow(other.ID).CommentsCount; got != 0 {
		t.Errorf("unrelated post comments = %d, want 0", got)
	}
}

func TestCreateCommentDetectsCycle(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")
	c1 := f.comment(alice, ptr(post.ID), nil)
	c2 := f.comment(alice, nil, ptr(c1.ID))

	corrupt := *f.commentRow(c1.ID)
	corrupt.ParentCommentID = ptr(c2.ID)
	f.store.UpdateComment(corrupt)

	postBefore := f.postRow(post.ID).CommentsCount
	factsBefore := len(f.facts())

	_, err := f.cmds.CreateComment(f.ctx, CreateCommentInput{Content: "loop", AuthorID: alice.ID, ParentCommentID: ptr(c2.ID)})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("CreateComment() error = %v, want ErrCycle", err)
	}
	if got := f.postRow(post.ID).CommentsCount; got != postBefore {
		t.Errorf("post comments = %d after failed cascade, want %d", got, postBefore)
	}
	if got := len(f.facts()); got != factsBefore {
		t.Errorf("facts = %d after failed cascade, want %d", got, factsBefore)
	}
}

func TestCreateCommentValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")
	gone := f.post(alice, "Soon deleted")
	if _, err := f.cmds.DeletePost(f.ctx, DeletePostInput{PostID: gone.ID}); err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}

	tests := []struct {
		name    string
		input   CreateCommentInput
		code    Code
		message string
	}{
		{"neither target", CreateCommentInput{Content: "hi", AuthorID: alice.ID}, CodeInvalidInput, "Either post or parent comment must be provided"},
		{"both targets", CreateCommentInput{Content: "hi", AuthorID: alice.ID, PostID: ptr(post.ID), ParentCommentID: ptr(1)}, CodeInvalidInput, "Either post or parent comment must be provided"},
		{"blank content", CreateCommentInput{Content: "   ", AuthorID: alice.ID, PostID: ptr(post.ID)}, CodeInvalidInput, "Content is too short"},
		{"long content", CreateCommentInput{Content: strings.Repeat("x", 1001), AuthorID: alice.ID, PostID: ptr(post.ID)}, CodeInvalidInput, "Content is too long"},
		{"invalid post id", CreateCommentInput{Content: "hi", AuthorID: alice.ID, PostID: ptr(-1)}, CodeInvalidInput, "Invalid post ID"},
		{"missing author", CreateCommentInput{Content: "hi", AuthorID: 999, PostID: ptr(post.ID)}, CodeNotFound, "Author doesn't exist"},
		{"missing post", CreateCommentInput{Content: "hi", AuthorID: alice.ID, PostID: ptr(999)}, CodeNotFound, "Post doesn't exist"},
		{"missing parent", CreateCommentInput{Content: "hi", AuthorID: alice.ID, ParentCommentID: ptr(999)}, CodeNotFound, "Comment doesn't exist"},
		{"deleted post", CreateCommentInput{Content: "hi", AuthorID: alice.ID, PostID: ptr(gone.ID)}, CodeNotFound, "Post doesn't exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cmds.CreateComment(f.ctx, tt.input)
			wantCode(t, err, tt.code)
			if cerr, ok := AsError(err); ok && cerr.Message != tt.message {
				t.Errorf("message = %q, want %q", cerr.Message, tt.message)
			}
		})
	}

	if got := f.postRow(post.ID).CommentsCount; got != 0 {
		t.Errorf("post comments = %d after rejected comments, want 0", got)
	}
}

func TestCreateCommentTrimsContent(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")

	c, err := f.cmds.CreateComment(f.ctx, CreateCommentInput{Content: "  hello  ", AuthorID: alice.ID, PostID: ptr(post.ID)})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if c.Content != "hello" {
		t.Errorf("content = %q, want %q", c.Content, "hello")
	}
	if c.Author == nil || c.Author.ID != alice.ID {
		t.Errorf("author = %v, want user %d", c.Author, alice.ID)
	}
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.post(alice, "Hello world")

	tests := []struct {
		name    string
		input   CreatePostInput
		code    Code
		message string
	}{
		{"short title", CreatePostInput{Title: "Hey", URL: "https://example.com", AuthorID: alice.ID}, CodeInvalidInput, "Title is too short"},
		{"long title", CreatePostInput{Title: strings.Repeat("a", 101), URL: "https://example.com", AuthorID: alice.ID}, CodeInvalidInput, "Title is too long"},
		{"title charset", CreatePostInput{Title: "Hello <world>", URL: "https://example.com", AuthorID: alice.ID}, CodeInvalidInput, "Title contains invalid characters"},
		{"bad url", CreatePostInput{Title: "Valid title", URL: "not a url", AuthorID: alice.ID}, CodeInvalidInput, "Invalid URL"},
		{"long url", CreatePostInput{Title: "Valid title", URL: "https://example.com/" + strings.Repeat("a", 2048), AuthorID: alice.ID}, CodeInvalidInput, "URL is too long"},
		{"missing author", CreatePostInput{Title: "Valid title", URL: "https://example.com", AuthorID: 999}, CodeNotFound, "Author doesn't exist"},
		{"duplicate title", CreatePostInput{Title: "HELLO WORLD", URL: "https://example.com", AuthorID: alice.ID}, CodeConflict, "Title already taken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cmds.CreatePost(f.ctx, tt.input)
			wantCode(t, err, tt.code)
			if cerr, ok := AsError(err); ok && cerr.Message != tt.message {
				t.Errorf("message = %q, want %q", cerr.Message, tt.message)
			}
		})
	}
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	post := f.post(alice, "Hello world")

	deleted, err := f.cmds.DeletePost(f.ctx, DeletePostInput{PostID: post.ID})
	if err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	if !deleted.IsDeleted() {
		t.Error("Expected returned post to be marked deleted")
	}

	_, err = f.cmds.DeletePost(f.ctx, DeletePostInput{PostID: post.ID})
	wantCode(t, err, CodeConflict)

	_, err = f.cmds.DeletePost(f.ctx, DeletePostInput{PostID: 999})
	wantCode(t, err, CodeNotFound)

	facts := f.facts()
	want := &events.PostDeletedFact{PostID: post.ID}
	if diff := cmp.Diff(want, facts[len(facts)-1]); diff != "" {
		t.Errorf("last fact mismatch (-want +got):\n%s", diff)
	}

	// The title is free again once the post is gone.
	f.post(alice, "Hello world")
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	f.user("alice")

	tests := []struct {
		name     string
		username string
		code     Code
	}{
		{"too short", "al", CodeInvalidInput},
		{"too long", strings.Repeat("a", 33), CodeInvalidInput},
		{"bad characters", "alice smith", CodeInvalidInput},
		{"duplicate ignoring case", "ALICE", CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cmds.CreateUser(f.ctx, CreateUserInput{Username: tt.username})
			wantCode(t, err, tt.code)
		})
	}

	if got := len(f.facts()); got != 0 {
		t.Errorf("facts = %d after creating users, want 0", got)
	}
}
