// Package memstore is an in-memory implementation of the store contracts,
// including the durable queue's lease semantics. It backs unit tests that
// must run without Postgres.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
)

// ErrDuplicate mirrors a unique constraint violation
var ErrDuplicate = errors.New("memstore: duplicate key")

type fact struct {
	id         int64
	kind       events.Kind
	payload    []byte
	readCount  int
	enqueuedAt time.Time
	visibleAt  time.Time
}

type state struct {
	nextID       int64
	users        map[int64]models.User
	posts        map[int64]models.Post
	comments     map[int64]models.Comment
	postVotes    map[int64]models.PostVote
	commentVotes map[int64]models.CommentVote
	facts        map[int64]fact
	archived     map[int64]fact
}

func newState() *state {
	return &state{
		users:        map[int64]models.User{},
		posts:        map[int64]models.Post{},
		comments:     map[int64]models.Comment{},
		postVotes:    map[int64]models.PostVote{},
		commentVotes: map[int64]models.CommentVote{},
		facts:        map[int64]fact{},
		archived:     map[int64]fact{},
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:       s.nextID,
		users:        make(map[int64]models.User, len(s.users)),
		posts:        make(map[int64]models.Post, len(s.posts)),
		comments:     make(map[int64]models.Comment, len(s.comments)),
		postVotes:    make(map[int64]models.PostVote, len(s.postVotes)),
		commentVotes: make(map[int64]models.CommentVote, len(s.commentVotes)),
		facts:        make(map[int64]fact, len(s.facts)),
		archived:     make(map[int64]fact, len(s.archived)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.posts {
		c.posts[k] = v
	}
	for k, v := range s.comments {
		c.comments[k] = v
	}
	for k, v := range s.postVotes {
		c.postVotes[k] = v
	}
	for k, v := range s.commentVotes {
		c.commentVotes[k] = v
	}
	for k, v := range s.facts {
		c.facts[k] = v
	}
	for k, v := range s.archived {
		c.archived[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store is a concurrency-safe in-memory store
type Store struct {
	mu     sync.Mutex
	data   *state
	now    func() time.Time
	notify chan struct{}
}

// New creates an empty store using the wall clock
func New() *Store {
	return &Store{
		data:   newState(),
		now:    time.Now,
		notify: make(chan struct{}, 1),
	}
}

// SetClock replaces the clock used for timestamps and leases
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{data: s.data.clone(), now: s.now}
	if err := fn(t); err != nil {
		return err
	}
	s.data = t.data
	if t.appended {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *Store) read() *tx {
	return &tx{data: s.data, now: s.now}
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UserByID(ctx, id)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UserByUsername(ctx, username)
}

func (s *Store) PostByID(ctx context.Context, id int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PostByID(ctx, id)
}

func (s *Store) PostByTitle(ctx context.Context, title string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PostByTitle(ctx, title)
}

func (s *Store) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CommentByID(ctx, id)
}

func (s *Store) PostVoteByID(ctx context.Context, id int64) (*models.PostVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PostVoteByID(ctx, id)
}

func (s *Store) CommentVoteByID(ctx context.Context, id int64) (*models.CommentVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CommentVoteByID(ctx, id)
}

func (s *Store) ListPosts(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListPosts(ctx)
}

func (s *Store) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListComments(ctx, postID)
}

func (s *Store) PostVotesByUser(ctx context.Context, userID int64, postIDs []int64) ([]models.PostVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PostVotesByUser(ctx, userID, postIDs)
}

func (s *Store) CommentVotesByUser(ctx context.Context, userID int64, commentIDs []int64) ([]models.CommentVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CommentVotesByUser(ctx, userID, commentIDs)
}

// Poll leases up to max visible facts, oldest first
func (s *Store) Poll(ctx context.Context, lease time.Duration, max int) ([]store.LeasedFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	ids := make([]int64, 0, len(s.data.facts))
	for id, f := range s.data.facts {
		if !f.visibleAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > max {
		ids = ids[:max]
	}

	leased := make([]store.LeasedFact, 0, len(ids))
	for _, id := range ids {
		f := s.data.facts[id]
		f.readCount++
		f.visibleAt = now.Add(lease)
		s.data.facts[id] = f
		leased = append(leased, store.LeasedFact{
			Receipt:    store.Receipt{FactID: f.id, ReadCount: f.readCount},
			Kind:       f.kind,
			Payload:    append([]byte(nil), f.payload...),
			EnqueuedAt: f.enqueuedAt,
		})
	}
	return leased, nil
}

// Archive moves a fact to the archive if the receipt still owns its lease
func (s *Store) Archive(ctx context.Context, receipt store.Receipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	f, ok := s.data.facts[receipt.FactID]
	if !ok || f.readCount != receipt.ReadCount {
		return false, nil
	}
	delete(s.data.facts, f.id)
	s.data.archived[f.id] = f
	return true, nil
}

// Wait blocks until a transaction appends a fact, max elapses, or ctx ends
func (s *Store) Wait(ctx context.Context, max time.Duration) {
	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-s.notify:
	}
}

// Pending returns the number of facts that are not archived
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.facts)
}

// Archived returns the number of archived facts
func (s *Store) Archived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.archived)
}

// Facts decodes every fact not yet archived, oldest first
func (s *Store) Facts() ([]events.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.data.facts))
	for id := range s.data.facts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]events.Fact, 0, len(ids))
	for _, id := range ids {
		f := s.data.facts[id]
		decoded, err := events.DecodeFact(f.kind, f.payload)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

// UpdateComment overwrites a comment row as-is. Tests use it to corrupt
// parent links.
func (s *Store) UpdateComment(c models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Author = nil
	s.data.comments[c.ID] = c
}

// DeleteComment removes a comment row outright
func (s *Store) DeleteComment(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.comments, id)
}

// tx operates on a state copy owned by one transaction
type tx struct {
	data     *state
	now      func() time.Time
	appended bool
}

func (t *tx) UserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := t.data.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *tx) UserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range t.data.users {
		if strings.EqualFold(u.Username, username) {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) PostByID(_ context.Context, id int64) (*models.Post, error) {
	p, ok := t.data.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *tx) PostByTitle(_ context.Context, title string) (*models.Post, error) {
	for _, p := range t.data.posts {
		if p.DeletedAt == nil && strings.EqualFold(p.Title, title) {
			p := p
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) CommentByID(_ context.Context, id int64) (*models.Comment, error) {
	c, ok := t.data.comments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (t *tx) PostVoteByID(_ context.Context, id int64) (*models.PostVote, error) {
	v, ok := t.data.postVotes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (t *tx) CommentVoteByID(_ context.Context, id int64) (*models.CommentVote, error) {
	v, ok := t.data.commentVotes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (t *tx) author(id int64) *models.User {
	if u, ok := t.data.users[id]; ok {
		return &u
	}
	return nil
}

func (t *tx) ListPosts(_ context.Context) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(t.data.posts))
	for _, p := range t.data.posts {
		if p.DeletedAt != nil {
			continue
		}
		p.Author = t.author(p.AuthorID)
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Score != posts[j].Score {
			return posts[i].Score > posts[j].Score
		}
		return posts[i].ID > posts[j].ID
	})
	return posts, nil
}

func (t *tx) ListComments(_ context.Context, postID int64) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	for _, c := range t.data.comments {
		if c.PostID != postID || c.DeletedAt != nil {
			continue
		}
		c.Author = t.author(c.AuthorID)
		comments = append(comments, c)
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return comments, nil
}

func (t *tx) PostVotesByUser(_ context.Context, userID int64, postIDs []int64) ([]models.PostVote, error) {
	wanted := idSet(postIDs)
	votes := make([]models.PostVote, 0)
	for _, v := range t.data.postVotes {
		if v.UserID == userID && wanted[v.PostID] {
			votes = append(votes, v)
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].ID < votes[j].ID })
	return votes, nil
}

func (t *tx) CommentVotesByUser(_ context.Context, userID int64, commentIDs []int64) ([]models.CommentVote, error) {
	wanted := idSet(commentIDs)
	votes := make([]models.CommentVote, 0)
	for _, v := range t.data.commentVotes {
		if v.UserID == userID && wanted[v.CommentID] {
			votes = append(votes, v)
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].ID < votes[j].ID })
	return votes, nil
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (t *tx) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := t.UserByUsername(ctx, user.Username); err == nil {
		return fmt.Errorf("users_username_idx: %w", ErrDuplicate)
	}
	now := t.now()
	user.ID = t.data.id()
	user.CreatedAt, user.UpdatedAt = now, now
	row := *user
	t.data.users[row.ID] = row
	return nil
}

func (t *tx) CreatePost(_ context.Context, post *models.Post) error {
	if _, ok := t.data.users[post.AuthorID]; !ok {
		return fmt.Errorf("posts_author_id_fkey: %w", store.ErrNotFound)
	}
	now := t.now()
	post.ID = t.data.id()
	post.CreatedAt, post.UpdatedAt = now, now
	row := *post
	row.Author = nil
	t.data.posts[row.ID] = row
	return nil
}

func (t *tx) CreateComment(_ context.Context, comment *models.Comment) error {
	if _, ok := t.data.users[comment.AuthorID]; !ok {
		return fmt.Errorf("comments_author_id_fkey: %w", store.ErrNotFound)
	}
	if _, ok := t.data.posts[comment.PostID]; !ok {
		return fmt.Errorf("comments_post_id_fkey: %w", store.ErrNotFound)
	}
	now := t.now()
	comment.ID = t.data.id()
	comment.CreatedAt, comment.UpdatedAt = now, now
	row := *comment
	row.Author = nil
	t.data.comments[row.ID] = row
	return nil
}

func (t *tx) SoftDeletePost(_ context.Context, postID int64, at time.Time) (*models.Post, error) {
	p, ok := t.data.posts[postID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.DeletedAt = &at
	p.UpdatedAt = at
	t.data.posts[postID] = p
	return &p, nil
}

func (t *tx) FindPostVote(_ context.Context, userID, postID int64) (*models.PostVote, error) {
	for _, v := range t.data.postVotes {
		if v.UserID == userID && v.PostID == postID {
			v := v
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) SavePostVote(ctx context.Context, vote *models.PostVote) error {
	now := t.now()
	if vote.ID == 0 {
		if _, err := t.FindPostVote(ctx, vote.UserID, vote.PostID); err == nil {
			return fmt.Errorf("post_votes_user_post_idx: %w", ErrDuplicate)
		}
		vote.ID = t.data.id()
		vote.CreatedAt = now
	}
	vote.UpdatedAt = now
	t.data.postVotes[vote.ID] = *vote
	return nil
}

func (t *tx) FindCommentVote(_ context.Context, userID, commentID int64) (*models.CommentVote, error) {
	for _, v := range t.data.commentVotes {
		if v.UserID == userID && v.CommentID == commentID {
			v := v
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) SaveCommentVote(ctx context.Context, vote *models.CommentVote) error {
	now := t.now()
	if vote.ID == 0 {
		if _, err := t.FindCommentVote(ctx, vote.UserID, vote.CommentID); err == nil {
			return fmt.Errorf("comment_votes_user_comment_idx: %w", ErrDuplicate)
		}
		vote.ID = t.data.id()
		vote.CreatedAt = now
	}
	vote.UpdatedAt = now
	t.data.commentVotes[vote.ID] = *vote
	return nil
}

func (t *tx) AddPostScore(_ context.Context, postID, delta int64) (int64, error) {
	p, ok := t.data.posts[postID]
	if !ok {
		return 0, store.ErrNotFound
	}
	p.Score += delta
	t.data.posts[postID] = p
	return p.Score, nil
}

func (t *tx) AddCommentScore(_ context.Context, commentID, delta int64) (int64, error) {
	c, ok := t.data.comments[commentID]
	if !ok {
		return 0, store.ErrNotFound
	}
	c.Score += delta
	t.data.comments[commentID] = c
	return c.Score, nil
}

func (t *tx) IncrementPostComments(_ context.Context, postID int64) error {
	p, ok := t.data.posts[postID]
	if !ok {
		return store.ErrNotFound
	}
	p.CommentsCount++
	t.data.posts[postID] = p
	return nil
}

func (t *tx) IncrementCommentComments(_ context.Context, commentID int64) (*int64, error) {
	c, ok := t.data.comments[commentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.CommentsCount++
	t.data.comments[commentID] = c
	return c.ParentCommentID, nil
}

func (t *tx) AppendFact(_ context.Context, f events.Fact) error {
	kind, payload, err := events.EncodeFact(f)
	if err != nil {
		return err
	}
	now := t.now()
	id := t.data.id()
	t.data.facts[id] = fact{
		id:         id,
		kind:       kind,
		payload:    payload,
		enqueuedAt: now,
		visibleAt:  now,
	}
	t.appended = true
	return nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Queue = (*Store)(nil)
	_ store.Waker = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)
