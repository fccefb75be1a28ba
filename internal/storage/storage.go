// Package storage contains a storage interface.
package storage

import (
	"context"
	"fmt"

	"github.com/finchsocial/finch/internal/entities"
)

//go:generate mockgen -destination=./mock/storage.go -package=mock -source=storage.go

// ErrNotFound ...
var ErrNotFound = fmt.Errorf("not found")

// ErrAlreadyExists is returned when a unique constraint (handle or api
// token) is violated.
var ErrAlreadyExists = fmt.Errorf("already exists")

// Storage provides methods for interacting with database.
type Storage interface {
	CreateAccount(ctx context.Context, p *CreateAccountParams) (*entities.Account, error)
	GetAccount(ctx context.Context, id int64) (*entities.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*entities.Account, error)
	GetAccountByAPIToken(ctx context.Context, token string) (*entities.Account, error)
	GetAccounts(ctx context.Context, ids ...int64) (map[int64]*entities.Account, error)
	UpdateAccount(ctx context.Context, p *UpdateAccountParams) (*entities.Account, error)
	ListAccounts(ctx context.Context, p *ListAccountsParams) ([]*entities.Account, error)
	CountAccounts(ctx context.Context, f *AccountFilter) (int, error)

	Follow(ctx context.Context, follower, followee int64) error
	Unfollow(ctx context.Context, follower, followee int64) error

	CreatePost(ctx context.Context, p *CreatePostParams) (*entities.Post, error)
	GetPost(ctx context.Context, id int64) (*entities.Post, error)
	GetPosts(ctx context.Context, ids ...int64) (map[int64]*entities.Post, error)
	DeletePost(ctx context.Context, id int64) error
	ListPosts(ctx context.Context, p *ListPostsParams) ([]*entities.Post, error)
	CountPosts(ctx context.Context, f *PostFilter) (int, error)

	Like(ctx context.Context, postID, likedBy int64) error
	Unlike(ctx context.Context, postID, likedBy int64) error

	GetPostStats(ctx context.Context, likedBy *int64, ids ...int64) (map[int64]PostStats, error)
	GetAccountStats(ctx context.Context, relativeTo *int64, ids ...int64) (map[int64]AccountStats, error)
}

// CreateAccountParams ...
type CreateAccountParams struct {
	Handle       string
	DisplayName  string
	Bio          string
	Avatar       string
	APIToken     string
	PasswordHash string
}

// UpdateAccountParams ...
type UpdateAccountParams struct {
	ID          int64
	Handle      string
	DisplayName string
	Bio         string
	Avatar      string
}

// CreatePostParams ...
type CreatePostParams struct {
	Author      int64
	Text        string
	Attachments []string
	ReplyTo     *int64
	RepostOf    *int64
}

// PostFilter selects candidate posts for feeds. At most one of the
// criteria fields is set by the feed layer, Query may be combined with none.
type PostFilter struct {
	// Author filters posts by author id.
	Author *int64
	// ReplyTo filters posts replying to the given post id.
	ReplyTo *int64
	// TimelineFor filters non-reply posts authored by the given account
	// or by any account it follows.
	TimelineFor *int64
	// Query is a case-insensitive substring matched against post text and
	// the author's handle, display name and bio.
	Query *string
}

// ListPostsParams ...
type ListPostsParams struct {
	PostFilter
	Limit  int
	Offset int
}

// AccountFilter selects accounts for search and suggestions.
type AccountFilter struct {
	// Query is a case-insensitive substring matched against handle,
	// display name and bio.
	Query *string
	// NotFollowedBy excludes the given account and everyone it follows.
	NotFollowedBy *int64
}

// ListAccountsParams ...
type ListAccountsParams struct {
	AccountFilter
	Limit     int
	Offset    int
	Ascending bool
}

// PostStats is a per-post aggregate. Liked is meaningful only when the
// stats were requested with a likedBy account.
type PostStats struct {
	Likes int
	Liked bool
}

// AccountStats is a per-account aggregate. IsFollowing and IsFollowedBy are
// meaningful only when the stats were requested with a relativeTo account:
// IsFollowing tells whether relativeTo follows the account, IsFollowedBy
// whether the account follows relativeTo.
type AccountStats struct {
	Followers    int
	Following    int
	Posts        int
	IsFollowing  bool
	IsFollowedBy bool
}
