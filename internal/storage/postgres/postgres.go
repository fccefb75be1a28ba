// Package postgres is implementation of storage interface.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/storage"
)

const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

type pg struct {
	ext sqlx.ExtContext
}

// New creates new instance of pg.
func New(db *sql.DB) storage.Storage {
	return pg{
		ext: sqlx.NewDb(db, "postgres"),
	}
}

type accountDTO struct {
	ID           int64     `db:"id"`
	Handle       string    `db:"handle"`
	DisplayName  string    `db:"display_name"`
	Bio          string    `db:"bio"`
	Avatar       string    `db:"avatar"`
	APIToken     string    `db:"api_token"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type postDTO struct {
	ID          int64          `db:"id"`
	Author      int64          `db:"author"`
	Text        string         `db:"text"`
	Attachments pq.StringArray `db:"attachments"`
	CreatedAt   time.Time      `db:"created_at"`
	ReplyTo     *int64         `db:"reply_to"`
	RepostOf    *int64         `db:"repost_of"`
}

type postStatsDTO struct {
	ID    int64 `db:"id"`
	Likes int   `db:"likes"`
	Liked bool  `db:"liked"`
}

type accountStatsDTO struct {
	ID           int64 `db:"id"`
	Followers    int   `db:"followers"`
	Following    int   `db:"following"`
	Posts        int   `db:"posts"`
	IsFollowing  bool  `db:"is_following"`
	IsFollowedBy bool  `db:"is_followed_by"`
}

func toAccount(a accountDTO) *entities.Account {
	return &entities.Account{
		ID:           a.ID,
		Handle:       a.Handle,
		DisplayName:  a.DisplayName,
		Bio:          a.Bio,
		Avatar:       a.Avatar,
		APIToken:     a.APIToken,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
	}
}

func toPost(p postDTO) *entities.Post {
	return &entities.Post{
		ID:          p.ID,
		Author:      p.Author,
		Text:        p.Text,
		Attachments: p.Attachments,
		CreatedAt:   p.CreatedAt,
		ReplyTo:     p.ReplyTo,
		RepostOf:    p.RepostOf,
	}
}

const accountColumns = `id, handle, display_name, bio, avatar, api_token, password_hash, created_at`
const postColumns = `id, author, text, attachments, created_at, reply_to, repost_of`

func (s pg) CreateAccount(ctx context.Context, p *storage.CreateAccountParams) (*entities.Account, error) {
	var a accountDTO

	if err := sqlx.GetContext(ctx, s.ext, &a, `
			INSERT INTO account(handle, display_name, bio, avatar, api_token, password_hash)
			VALUES($1, $2, $3, $4, $5, $6)
			RETURNING `+accountColumns,
		p.Handle, p.DisplayName, p.Bio, p.Avatar, p.APIToken, p.PasswordHash,
	); err != nil {
		if err, ok := err.(*pq.Error); ok && err.Code == uniqueViolation {
			return nil, storage.ErrAlreadyExists
		}

		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	return toAccount(a), nil
}

func (s pg) GetAccount(ctx context.Context, id int64) (*entities.Account, error) {
	return s.getAccount(ctx, `id = $1`, id)
}

func (s pg) GetAccountByHandle(ctx context.Context, handle string) (*entities.Account, error) {
	return s.getAccount(ctx, `handle = $1`, handle)
}

func (s pg) GetAccountByAPIToken(ctx context.Context, token string) (*entities.Account, error) {
	return s.getAccount(ctx, `api_token = $1`, token)
}

func (s pg) getAccount(ctx context.Context, where string, arg interface{}) (*entities.Account, error) {
	var a accountDTO

	if err := sqlx.GetContext(ctx, s.ext, &a,
		`SELECT `+accountColumns+` FROM account WHERE `+where, arg,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toAccount(a), nil
}

func (s pg) GetAccounts(ctx context.Context, ids ...int64) (map[int64]*entities.Account, error) {
	out := make(map[int64]*entities.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+accountColumns+` FROM account WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to construct IN clause: %w", err)
	}

	var aa []accountDTO
	if err := sqlx.SelectContext(ctx, s.ext, &aa, s.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	for _, a := range aa {
		out[a.ID] = toAccount(a)
	}

	return out, nil
}

func (s pg) UpdateAccount(ctx context.Context, p *storage.UpdateAccountParams) (*entities.Account, error) {
	var a accountDTO

	if err := sqlx.GetContext(ctx, s.ext, &a, `
			UPDATE account SET handle=$2, display_name=$3, bio=$4, avatar=$5
			WHERE id=$1
			RETURNING `+accountColumns,
		p.ID, p.Handle, p.DisplayName, p.Bio, p.Avatar,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		if err, ok := err.(*pq.Error); ok && err.Code == uniqueViolation {
			return nil, storage.ErrAlreadyExists
		}

		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	return toAccount(a), nil
}

func accountFilterSQL(f *storage.AccountFilter) (string, []interface{}) {
	where := []string{"TRUE"}
	var args []interface{}

	if f.Query != nil {
		args = append(args, likePattern(*f.Query))
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(a.handle ILIKE $%[1]d OR a.display_name ILIKE $%[1]d OR a.bio ILIKE $%[1]d)", n))
	}

	if f.NotFollowedBy != nil {
		args = append(args, *f.NotFollowedBy)
		n := len(args)
		where = append(where, fmt.Sprintf(
			"a.id <> $%[1]d AND a.id NOT IN (SELECT followee FROM follow WHERE follower = $%[1]d)", n))
	}

	return strings.Join(where, " AND "), args
}

func (s pg) ListAccounts(ctx context.Context, p *storage.ListAccountsParams) ([]*entities.Account, error) {
	where, args := accountFilterSQL(&p.AccountFilter)

	order := "DESC"
	if p.Ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`
			SELECT %s FROM account a WHERE %s
			ORDER BY a.id %s LIMIT $%d OFFSET $%d`,
		aliasColumns("a", accountColumns), where, order, len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)

	var aa []accountDTO
	if err := sqlx.SelectContext(ctx, s.ext, &aa, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	out := make([]*entities.Account, len(aa))
	for i, a := range aa {
		out[i] = toAccount(a)
	}

	return out, nil
}

func (s pg) CountAccounts(ctx context.Context, f *storage.AccountFilter) (int, error) {
	where, args := accountFilterSQL(f)

	var c int
	if err := sqlx.GetContext(ctx, s.ext, &c,
		`SELECT COUNT(*) FROM account a WHERE `+where, args...,
	); err != nil {
		return 0, fmt.Errorf("failed to query: %w", err)
	}

	return c, nil
}

func (s pg) Follow(ctx context.Context, follower, followee int64) error {
	if _, err := s.ext.ExecContext(ctx,
		`INSERT INTO follow(follower, followee) VALUES($1, $2) ON CONFLICT DO NOTHING`,
		follower, followee,
	); err != nil {
		if err, ok := err.(*pq.Error); ok && err.Code == foreignKeyViolation {
			return storage.ErrNotFound
		}

		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) Unfollow(ctx context.Context, follower, followee int64) error {
	if _, err := s.ext.ExecContext(ctx,
		`DELETE FROM follow WHERE follower=$1 AND followee=$2`,
		follower, followee,
	); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) CreatePost(ctx context.Context, p *storage.CreatePostParams) (*entities.Post, error) {
	var out postDTO

	if err := sqlx.GetContext(ctx, s.ext, &out, `
			INSERT INTO post(author, text, attachments, reply_to, repost_of)
			VALUES($1, $2, $3, $4, $5)
			RETURNING `+postColumns,
		p.Author, p.Text, pq.StringArray(p.Attachments), p.ReplyTo, p.RepostOf,
	); err != nil {
		if err, ok := err.(*pq.Error); ok && err.Code == foreignKeyViolation {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	return toPost(out), nil
}

func (s pg) GetPost(ctx context.Context, id int64) (*entities.Post, error) {
	var p postDTO

	if err := sqlx.GetContext(ctx, s.ext, &p,
		`SELECT `+postColumns+` FROM post WHERE id = $1`, id,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toPost(p), nil
}

func (s pg) GetPosts(ctx context.Context, ids ...int64) (map[int64]*entities.Post, error) {
	out := make(map[int64]*entities.Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+postColumns+` FROM post WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to construct IN clause: %w", err)
	}

	var pp []postDTO
	if err := sqlx.SelectContext(ctx, s.ext, &pp, s.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	for _, p := range pp {
		out[p.ID] = toPost(p)
	}

	return out, nil
}

// DeletePost removes a post; its likes are removed by the cascading
// foreign key on "like".
func (s pg) DeletePost(ctx context.Context, id int64) error {
	res, err := s.ext.ExecContext(ctx, `DELETE FROM post WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func postFilterSQL(f *storage.PostFilter) (string, []interface{}) {
	where := []string{"TRUE"}
	var args []interface{}

	if f.Author != nil {
		args = append(args, *f.Author)
		where = append(where, fmt.Sprintf("p.author = $%d", len(args)))
	}

	if f.ReplyTo != nil {
		args = append(args, *f.ReplyTo)
		where = append(where, fmt.Sprintf("p.reply_to = $%d", len(args)))
	}

	if f.TimelineFor != nil {
		args = append(args, *f.TimelineFor)
		n := len(args)
		where = append(where, fmt.Sprintf(
			"p.reply_to IS NULL AND (p.author = $%[1]d OR p.author IN (SELECT followee FROM follow WHERE follower = $%[1]d))", n))
	}

	if f.Query != nil {
		args = append(args, likePattern(*f.Query))
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(p.text ILIKE $%[1]d OR a.handle ILIKE $%[1]d OR a.display_name ILIKE $%[1]d OR a.bio ILIKE $%[1]d)", n))
	}

	return strings.Join(where, " AND "), args
}

func (s pg) ListPosts(ctx context.Context, p *storage.ListPostsParams) ([]*entities.Post, error) {
	where, args := postFilterSQL(&p.PostFilter)

	query := fmt.Sprintf(`
			SELECT %s FROM post p JOIN account a ON a.id = p.author
			WHERE %s
			ORDER BY p.id DESC LIMIT $%d OFFSET $%d`,
		aliasColumns("p", postColumns), where, len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)

	var pp []postDTO
	if err := sqlx.SelectContext(ctx, s.ext, &pp, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	out := make([]*entities.Post, len(pp))
	for i, v := range pp {
		out[i] = toPost(v)
	}

	return out, nil
}

func (s pg) CountPosts(ctx context.Context, f *storage.PostFilter) (int, error) {
	where, args := postFilterSQL(f)

	var c int
	if err := sqlx.GetContext(ctx, s.ext, &c,
		`SELECT COUNT(*) FROM post p JOIN account a ON a.id = p.author WHERE `+where, args...,
	); err != nil {
		return 0, fmt.Errorf("failed to query: %w", err)
	}

	return c, nil
}

func (s pg) Like(ctx context.Context, postID, likedBy int64) error {
	if _, err := s.ext.ExecContext(ctx,
		`INSERT INTO "like"(post_id, user_id) VALUES($1, $2) ON CONFLICT DO NOTHING`,
		postID, likedBy,
	); err != nil {
		if err, ok := err.(*pq.Error); ok && err.Code == foreignKeyViolation {
			return storage.ErrNotFound
		}

		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) Unlike(ctx context.Context, postID, likedBy int64) error {
	if _, err := s.ext.ExecContext(ctx,
		`DELETE FROM "like" WHERE post_id=$1 AND user_id=$2`,
		postID, likedBy,
	); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

// GetPostStats returns like counts for every id that still exists; absent
// ids are simply missing from the result. The liked flag is computed
// against likedBy and is false everywhere when likedBy is nil.
func (s pg) GetPostStats(ctx context.Context, likedBy *int64, ids ...int64) (map[int64]storage.PostStats, error) {
	out := make(map[int64]storage.PostStats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
			SELECT p.id,
				(SELECT COUNT(*) FROM "like" l WHERE l.post_id = p.id) AS likes,
				EXISTS(SELECT 1 FROM "like" l WHERE l.post_id = p.id AND l.user_id = ?) AS liked
			FROM post p WHERE p.id IN (?)`,
		nullableID(likedBy), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to construct IN clause: %w", err)
	}

	var ss []postStatsDTO
	if err := sqlx.SelectContext(ctx, s.ext, &ss, s.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	for _, v := range ss {
		out[v.ID] = storage.PostStats{
			Likes: v.Likes,
			Liked: v.Liked,
		}
	}

	return out, nil
}

// GetAccountStats returns follower/following/post counts for every id that
// exists. Relationship flags are computed against relativeTo via two
// existence checks inside the same query; both are false when relativeTo
// is nil.
func (s pg) GetAccountStats(ctx context.Context, relativeTo *int64, ids ...int64) (map[int64]storage.AccountStats, error) {
	out := make(map[int64]storage.AccountStats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
			SELECT a.id,
				(SELECT COUNT(*) FROM follow f WHERE f.followee = a.id) AS followers,
				(SELECT COUNT(*) FROM follow f WHERE f.follower = a.id) AS following,
				(SELECT COUNT(*) FROM post p WHERE p.author = a.id) AS posts,
				EXISTS(SELECT 1 FROM follow f WHERE f.follower = ? AND f.followee = a.id) AS is_following,
				EXISTS(SELECT 1 FROM follow f WHERE f.follower = a.id AND f.followee = ?) AS is_followed_by
			FROM account a WHERE a.id IN (?)`,
		nullableID(relativeTo), nullableID(relativeTo), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to construct IN clause: %w", err)
	}

	var ss []accountStatsDTO
	if err := sqlx.SelectContext(ctx, s.ext, &ss, s.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	for _, v := range ss {
		out[v.ID] = storage.AccountStats{
			Followers:    v.Followers,
			Following:    v.Following,
			Posts:        v.Posts,
			IsFollowing:  v.IsFollowing,
			IsFollowedBy: v.IsFollowedBy,
		}
	}

	return out, nil
}

// likePattern builds a substring ILIKE pattern. The pattern
// metacharacters are escaped so the query matches them literally.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: *id, Valid: true}
}

// aliasColumns prefixes every column in a comma-separated list with a table
// alias.
func aliasColumns(alias, columns string) string {
	cc := strings.Split(columns, ", ")
	for i, c := range cc {
		cc[i] = alias + "." + c
	}

	return strings.Join(cc, ", ")
}
