package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratep "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/finchsocial/finch/internal/storage"
	"github.com/finchsocial/finch/internal/storage/postgres"
)

var opts = struct {
	Seed               string `long:"seed" env:"SEED" default:"seed.json" description:"path to seed file"`
	Postgres           string `long:"postgres" env:"POSTGRES" default:"host=localhost port=5432 user=postgres password=root sslmode=disable" description:"postgres dsn"`
	PostgresMigrations string `long:"postgres.migrations" env:"POSTGRES_MIGRATIONS" default:"scripts/migrations/postgres" description:"postgres migrations directory"`
	BcryptCost         int    `long:"bcrypt.cost" env:"BCRYPT_COST" default:"4" description:"bcrypt hashing cost, low by default to speed up seeding"`
}{}

type seed struct {
	Accounts []struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
		Bio         string `json:"bio"`
		Avatar      string `json:"avatar"`
		Password    string `json:"password"`
	} `json:"accounts"`

	// Follows lists [follower, followee] handle pairs.
	Follows [][2]string `json:"follows"`

	Posts []struct {
		Author      string   `json:"author"`
		Text        string   `json:"text"`
		Attachments []string `json:"attachments"`
		// ReplyTo and RepostOf are zero-based indices into Posts.
		ReplyTo  *int `json:"replyTo"`
		RepostOf *int `json:"repostOf"`
		// LikedBy lists handles of accounts which liked the post.
		LikedBy []string `json:"likedBy"`
	} `json:"posts"`
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "seed"
	parser.LongDescription = "Demo data importer"

	_, err := parser.Parse()

	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		logrus.WithError(err).Fatal("error occurred while parsing flags")
	}

	logrus.Info("seed started")
	logrus.Infof("%+v", opts)

	b, err := os.ReadFile(opts.Seed)
	if err != nil {
		logrus.WithError(err).Fatal("failed to read seed file")
	}

	var sd seed

	if err := json.Unmarshal(b, &sd); err != nil {
		logrus.WithError(err).Fatal("failed to unmarshal seed file")
	}

	db := mustGetDB()
	s := postgres.New(db)

	ctx := context.Background()

	logrus.Info("import accounts")
	accounts := make(map[string]int64, len(sd.Accounts))
	for i, v := range sd.Accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(v.Password), opts.BcryptCost)
		if err != nil {
			logrus.WithError(err).Fatal("failed to hash password")
		}

		account, err := s.CreateAccount(ctx, &storage.CreateAccountParams{
			Handle:       v.Handle,
			DisplayName:  v.DisplayName,
			Bio:          v.Bio,
			Avatar:       v.Avatar,
			APIToken:     uuid.NewString(),
			PasswordHash: string(hash),
		})
		if err != nil {
			logrus.WithError(err).Fatal("failed to put account into db")
		}

		accounts[v.Handle] = account.ID

		if (i+1)%20 == 0 {
			logrus.Infof("%d of %d accounts imported", i+1, len(sd.Accounts))
		}
	}

	logrus.Info("import follows")
	for i, v := range sd.Follows {
		if err := s.Follow(ctx, mustResolve(accounts, v[0]), mustResolve(accounts, v[1])); err != nil {
			logrus.WithError(err).Fatal("failed to put follow into db")
		}

		if (i+1)%20 == 0 {
			logrus.Infof("%d of %d follows imported", i+1, len(sd.Follows))
		}
	}

	logrus.Info("import posts")
	posts := make([]int64, 0, len(sd.Posts))
	for i, v := range sd.Posts {
		params := storage.CreatePostParams{
			Author:      mustResolve(accounts, v.Author),
			Text:        v.Text,
			Attachments: v.Attachments,
		}

		if v.ReplyTo != nil {
			params.ReplyTo = mustIndex(posts, *v.ReplyTo)
		}
		if v.RepostOf != nil {
			params.RepostOf = mustIndex(posts, *v.RepostOf)
		}

		post, err := s.CreatePost(ctx, &params)
		if err != nil {
			logrus.WithError(err).Fatal("failed to put post into db")
		}

		posts = append(posts, post.ID)

		for _, h := range v.LikedBy {
			if err := s.Like(ctx, post.ID, mustResolve(accounts, h)); err != nil {
				logrus.WithError(err).Fatal("failed to put like into db")
			}
		}

		if (i+1)%20 == 0 {
			logrus.Infof("%d of %d posts imported", i+1, len(sd.Posts))
		}
	}

	logrus.Info("done")
}

func mustResolve(accounts map[string]int64, handle string) int64 {
	id, ok := accounts[handle]
	if !ok {
		logrus.Fatalf("unknown handle %q in seed file", handle)
	}

	return id
}

// mustIndex maps a seed file post index to the created post's id. Only
// already imported posts can be referenced.
func mustIndex(posts []int64, i int) *int64 {
	if i < 0 || i >= len(posts) {
		logrus.Fatalf("post index %d out of range", i)
	}

	return &posts[i]
}

func mustGetDB() *sql.DB {
	db, err := sql.Open("postgres", opts.Postgres)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create postgres connection")
	}

	if err := db.PingContext(context.Background()); err != nil {
		logrus.WithError(err).Fatal("failed to ping postgres")
	}

	driver, err := migratep.WithInstance(db, &migratep.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("failed to create database migrate driver")
	}

	migrator, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", opts.PostgresMigrations), "postgres", driver)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create migrator")
	}

	switch err := migrator.Up(); err {
	case nil:
		logrus.Info("database was migrated")
	case migrate.ErrNoChange:
		logrus.Info("database is up-to-date")
	default:
		logrus.WithError(err).Fatal("failed to migrate db")
	}

	return db
}
