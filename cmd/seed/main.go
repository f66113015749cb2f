package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/commands"
	"github.com/thevtm/baker-news/internal/db"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/pkg/config"
	"github.com/thevtm/baker-news/pkg/logging"
)

var words = []string{
	"go", "postgres", "redis", "queue", "lease", "relay", "vote", "score",
	"feed", "stream", "cache", "index", "shard", "replica", "latency", "kernel",
	"compiler", "parser", "router", "scheduler", "tracing", "metrics", "bakery", "bread",
}

func main() {
	users := flag.Int("users", 100, "number of users to create")
	posts := flag.Int("posts", 10, "number of posts to create")
	comments := flag.Int("comments", 40, "number of comments to create, half of them replies")
	votes := flag.Int("votes", 300, "number of votes to cast on posts and comments")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()
	logger := logging.GetLogger()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	s := &seeder{
		cmds: commands.New(database.Store(), logger),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.run(ctx, *users, *posts, *comments, *votes); err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}
	logger.Info("Seeding finished",
		zap.Int("users", len(s.users)),
		zap.Int("posts", len(s.posts)),
		zap.Int("comments", len(s.comments)))
}

type seeder struct {
	cmds     *commands.Commands
	rnd      *rand.Rand
	users    []int64
	posts    []int64
	comments []int64
}

func (s *seeder) run(ctx context.Context, users, posts, comments, votes int) error {
	if users < 1 || posts < 1 {
		return errors.New("at least one user and one post are required")
	}

	for i := 0; len(s.users) < users; i++ {
		u, err := s.cmds.CreateUser(ctx, commands.CreateUserInput{
			Username: fmt.Sprintf("%s_%s_%d", s.word(), s.word(), i),
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		s.users = append(s.users, u.ID)
	}

	for i := 0; len(s.posts) < posts; i++ {
		title := fmt.Sprintf("%s %d", s.sentence(2+s.rnd.Intn(8)), i)
		p, err := s.cmds.CreatePost(ctx, commands.CreatePostInput{
			Title:    title,
			URL:      fmt.Sprintf("https://%s.example.com/%s", s.word(), s.word()),
			AuthorID: s.pick(s.users),
		})
		if err != nil {
			return fmt.Errorf("failed to create post %q: %w", title, err)
		}
		s.posts = append(s.posts, p.ID)
	}

	for i := 0; i < comments; i++ {
		in := commands.CreateCommentInput{Content: s.sentence(5 + s.rnd.Intn(20)), AuthorID: s.pick(s.users)}
		if i%2 == 1 && len(s.comments) > 0 {
			parent := s.pick(s.comments)
			in.ParentCommentID = &parent
		} else {
			post := s.pick(s.posts)
			in.PostID = &post
		}
		c, err := s.cmds.CreateComment(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		s.comments = append(s.comments, c.ID)
	}

	kinds := []models.VoteType{models.UpVote, models.UpVote, models.UpVote, models.DownVote, models.NoVote}
	for i := 0; i < votes; i++ {
		voteType := kinds[s.rnd.Intn(len(kinds))]
		if i%3 == 2 && len(s.comments) > 0 {
			if _, err := s.cmds.VoteComment(ctx, commands.VoteCommentInput{
				UserID: s.pick(s.users), CommentID: s.pick(s.comments), VoteType: voteType,
			}); err != nil {
				return fmt.Errorf("failed to vote on comment: %w", err)
			}
			continue
		}
		if _, err := s.cmds.VotePost(ctx, commands.VotePostInput{
			UserID: s.pick(s.users), PostID: s.pick(s.posts), VoteType: voteType,
		}); err != nil {
			return fmt.Errorf("failed to vote on post: %w", err)
		}
	}
	return nil
}

func (s *seeder) word() string {
	return words[s.rnd.Intn(len(words))]
}

func (s *seeder) sentence(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.word()
	}
	out := strings.Join(parts, " ")
	return strings.ToUpper(out[:1]) + out[1:]
}

func (s *seeder) pick(ids []int64) int64 {
	return ids[s.rnd.Intn(len(ids))]
}
