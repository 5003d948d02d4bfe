// olafctl is a small terminal client for the Olaf API, mostly useful for
// poking at a backend and for demonstrating the SDK wiring: it logs in,
// prints a feed page, and optionally toggles a like on a post.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	olaf "github.com/olafsocial/olaf-go"
	"github.com/olafsocial/olaf-go/api"
)

type cliConfig struct {
	Identity string `env:"OLAF_IDENTITY"`
	Secret   string `env:"OLAF_SECRET"`
	Page     int    `env:"OLAF_FEED_PAGE, default=1"`
	Limit    int    `env:"OLAF_FEED_LIMIT, default=10"`
}

func main() {
	configureLogging()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("olafctl failed")
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := olaf.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	var cli cliConfig
	if err := envconfig.Process(ctx, &cli); err != nil {
		return fmt.Errorf("cli configuration load failed: %w", err)
	}

	client, err := olaf.New(ctx, cfg,
		olaf.WithRetryObserver(func(n olaf.RetryNotice) {
			fmt.Fprintf(os.Stderr, "%s (attempt %d, waiting %s)\n", n.Message, n.Attempt, n.Delay)
		}),
	)
	if err != nil {
		return fmt.Errorf("client construction failed: %w", err)
	}
	defer client.Close()

	if cli.Identity != "" {
		user, err := client.Login(ctx, cli.Identity, cli.Secret)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		log.Info().Int("user_id", user.ID).Str("username", user.Username).Msg("logged in")
	} else if user, err := client.ProbeSession(ctx); err == nil {
		log.Info().Int("user_id", user.ID).Msg("existing session still valid")
	}

	posts, err := client.Feed(ctx, cli.Page, cli.Limit)
	if err != nil {
		return fmt.Errorf("feed fetch failed: %w", err)
	}

	for _, post := range posts {
		fmt.Printf("#%d  %-40s  by %s  (%d likes, %d comments)\n",
			post.ID, post.Title, post.Author.Username, post.LikeCount, post.CommentCount)
	}

	if len(os.Args) > 2 && os.Args[1] == "like" {
		postID, err := strconv.Atoi(os.Args[2])
		if err != nil {
			return fmt.Errorf("invalid post id %q", os.Args[2])
		}
		liked, _ := client.PostLiked(ctx, postID)
		result, err := client.TogglePostLike(ctx, postID, liked, likeCount(posts, postID))
		if err != nil {
			return fmt.Errorf("like toggle failed: %w", err)
		}
		fmt.Printf("post %d: liked=%v count=%d\n", postID, result.Liked, result.Count)
	}

	return nil
}

func likeCount(posts []api.Post, postID int) int {
	for _, post := range posts {
		if post.ID == postID {
			return post.LikeCount
		}
	}
	return 0
}

func configureLogging() {
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}
}
