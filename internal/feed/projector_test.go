package feed

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
)

func TestProject(t *testing.T) {
	const (
		viewer int64 = 1
		other  int64 = 2
	)
	alice := models.User{ID: other, Username: "alice", Role: models.RoleUser}

	postVote := func(userID int64, postID, score int64) events.Event {
		return events.PostVoted{
			Post: models.Post{ID: postID, Score: score},
			Vote: models.PostVote{ID: 40, PostID: postID, UserID: userID, VoteType: models.UpVote},
		}
	}
	commentVote := func(userID int64, postID, score int64) events.Event {
		return events.CommentVoted{
			Comment: models.Comment{ID: 30, PostID: postID, Score: score},
			Vote:    models.CommentVote{ID: 41, CommentID: 30, UserID: userID, VoteType: models.DownVote},
		}
	}

	global := Scope{ViewerID: viewer}
	postTen := Scope{ViewerID: viewer, PostID: 10}
	anonymous := Scope{}

	tests := []struct {
		name   string
		scope  Scope
		event  events.Event
		want   Frame
		wantOK bool
	}{
		{
			name:  "other user's post vote on global feed",
			scope: global,
			event: postVote(other, 10, 3),
			want: Frame{Type: FrameScoreChanged, Data: ScoreChanged{
				TargetType: TargetPost, TargetID: 10, NewScore: 3,
			}},
			wantOK: true,
		},
		{
			name:  "viewer's own post vote",
			scope: global,
			event: postVote(viewer, 10, 1),
			want: Frame{Type: FrameYourVoteChanged, Data: YourVoteChanged{
				Vote:     Vote{ID: 40, TargetType: TargetPost, TargetID: 10, UserID: viewer, VoteType: models.UpVote},
				NewScore: 1,
			}},
			wantOK: true,
		},
		{
			name:  "anonymous viewer never sees own vote",
			scope: anonymous,
			event: postVote(0, 10, 1),
			want: Frame{Type: FrameScoreChanged, Data: ScoreChanged{
				TargetType: TargetPost, TargetID: 10, NewScore: 1,
			}},
			wantOK: true,
		},
		{
			name:  "post vote on matching post feed",
			scope: postTen,
			event: postVote(other, 10, 5),
			want: Frame{Type: FrameScoreChanged, Data: ScoreChanged{
				TargetType: TargetPost, TargetID: 10, NewScore: 5,
			}},
			wantOK: true,
		},
		{
			name:   "post vote on unrelated post feed",
			scope:  postTen,
			event:  postVote(other, 11, 5),
			wantOK: false,
		},
		{
			name:  "comment vote on matching post feed",
			scope: postTen,
			event: commentVote(other, 10, -1),
			want: Frame{Type: FrameScoreChanged, Data: ScoreChanged{
				TargetType: TargetComment, TargetID: 30, NewScore: -1,
			}},
			wantOK: true,
		},
		{
			name:  "viewer's own comment vote",
			scope: postTen,
			event: commentVote(viewer, 10, -1),
			want: Frame{Type: FrameYourVoteChanged, Data: YourVoteChanged{
				Vote:     Vote{ID: 41, TargetType: TargetComment, TargetID: 30, UserID: viewer, VoteType: models.DownVote},
				NewScore: -1,
			}},
			wantOK: true,
		},
		{
			name:   "comment vote on global feed",
			scope:  global,
			event:  commentVote(other, 10, -1),
			wantOK: false,
		},
		{
			name:   "comment vote on unrelated post feed",
			scope:  postTen,
			event:  commentVote(other, 12, -1),
			wantOK: false,
		},
		{
			name:  "comment created on matching post feed",
			scope: postTen,
			event: events.CommentCreated{Comment: models.Comment{ID: 30, PostID: 10, AuthorID: other, Content: "hi"}, Author: alice},
			want: Frame{Type: FrameCommentCreated, Data: CommentCreated{
				Comment: models.Comment{ID: 30, PostID: 10, AuthorID: other, Content: "hi", Author: &alice},
			}},
			wantOK: true,
		},
		{
			name:  "comment created on global feed",
			scope: global,
			event: events.CommentCreated{Comment: models.Comment{ID: 30, PostID: 10, AuthorID: other}, Author: alice},
			want: Frame{Type: FrameCommentCreated, Data: CommentCreated{
				Comment: models.Comment{ID: 30, PostID: 10, AuthorID: other, Author: &alice},
			}},
			wantOK: true,
		},
		{
			name:   "comment created on unrelated post feed",
			scope:  postTen,
			event:  events.CommentCreated{Comment: models.Comment{ID: 31, PostID: 11}, Author: alice},
			wantOK: false,
		},
		{
			name:  "post created on global feed",
			scope: global,
			event: events.PostCreated{Post: models.Post{ID: 12, Title: "Hello world", AuthorID: other}, Author: alice},
			want: Frame{Type: FramePostCreated, Data: PostCreated{
				Post: models.Post{ID: 12, Title: "Hello world", AuthorID: other, Author: &alice},
			}},
			wantOK: true,
		},
		{
			name:   "post created on post feed",
			scope:  postTen,
			event:  events.PostCreated{Post: models.Post{ID: 10}, Author: alice},
			wantOK: false,
		},
		{
			name:   "post deleted on matching post feed",
			scope:  postTen,
			event:  events.PostDeleted{Post: models.Post{ID: 10}},
			want:   Frame{Type: FramePostDeleted, Data: PostDeleted{PostID: 10}},
			wantOK: true,
		},
		{
			name:   "post deleted on unrelated post feed",
			scope:  postTen,
			event:  events.PostDeleted{Post: models.Post{ID: 11}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Project(tt.scope, tt.event)
			if ok != tt.wantOK {
				t.Fatalf("Project(%+v, %T) ok = %v, want %v", tt.scope, tt.event, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Project(%+v, %T) mismatch (-want +got):\n%s", tt.scope, tt.event, diff)
			}
		})
	}
}

func TestProjectDoesNotMutateEvent(t *testing.T) {
	ev := events.PostCreated{Post: models.Post{ID: 1}, Author: models.User{ID: 2}}
	Project(Scope{}, ev)
	if ev.Post.Author != nil {
		t.Errorf("Project set Author on the published event")
	}
}
