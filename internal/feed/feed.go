// Package feed turns raw post and account rows into paginated,
// stat-enriched views. It sits between storage and the HTTP layer: it
// fetches one page of candidate rows, loads aggregate stats in a bounded
// number of batched queries and assembles nested views with reference
// expansion capped at depth 1.
package feed

import (
	"context"
	"fmt"
	"sort"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/storage"
)

// Service is the feed & relationship aggregation engine. It is stateless
// between calls; every invocation computes its views freshly.
type Service struct {
	storage     storage.Storage
	assetPrefix string
}

// New creates new instance of Service. assetPrefix is prepended verbatim
// to avatar and attachment references at export time.
func New(s storage.Storage, assetPrefix string) *Service {
	return &Service{
		storage:     s,
		assetPrefix: assetPrefix,
	}
}

// convertToViews exports one page of candidate posts. It loads the stat
// batch once for the whole input and returns views ordered by descending
// post id. A candidate whose author row vanished is skipped.
func (s *Service) convertToViews(ctx context.Context, posts []*entities.Post, requester *entities.Account) ([]*PostView, error) {
	batch, err := s.loadBatch(ctx, posts, requester)
	if err != nil {
		return nil, err
	}

	out := make([]*PostView, 0, len(posts))
	for _, p := range posts {
		author, ok := batch.authors[p.Author]
		if !ok {
			continue
		}

		out = append(out, s.exportPost(
			p,
			s.exportAccount(author, false, batch.accountStats[p.Author], batch.hasRequester),
			batch.postStats[p.ID],
			batch.hasRequester,
			s.resolveReference(p.ReplyTo, batch),
			s.resolveReference(p.RepostOf, batch),
		))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	return out, nil
}

// paginatePosts runs the shared assembler template: fetch limit+1 candidate
// rows (the extra row is only the more-available sentinel), fetch the
// unbounded total count, convert and cut the page. The two fetches are
// independent queries and may observe slightly different states under
// concurrent writes; that inconsistency is accepted.
func (s *Service) paginatePosts(ctx context.Context, f storage.PostFilter, requester *entities.Account, p PaginationRequest) (*PaginationResult[*PostView], error) {
	posts, err := s.storage.ListPosts(ctx, &storage.ListPostsParams{
		PostFilter: f,
		Limit:      p.Limit + 1,
		Offset:     p.Limit * p.Page,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	total, err := s.storage.CountPosts(ctx, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	views, err := s.convertToViews(ctx, posts, requester)
	if err != nil {
		return nil, err
	}

	if len(views) > p.Limit {
		views = views[:p.Limit]
	}

	return &PaginationResult[*PostView]{
		Limit:         p.Limit,
		Page:          p.Page,
		Total:         total,
		MoreAvailable: len(posts) > p.Limit,
		Results:       views,
	}, nil
}

// AccountPosts returns one page of posts authored by the given account.
func (s *Service) AccountPosts(ctx context.Context, author *entities.Account, requester *entities.Account, p PaginationRequest) (*PaginationResult[*PostView], error) {
	return s.paginatePosts(ctx, storage.PostFilter{Author: &author.ID}, requester, p)
}

// HomeTimeline returns one page of non-reply posts authored by the
// requester or by anyone the requester follows.
func (s *Service) HomeTimeline(ctx context.Context, requester *entities.Account, p PaginationRequest) (*PaginationResult[*PostView], error) {
	return s.paginatePosts(ctx, storage.PostFilter{TimelineFor: &requester.ID}, requester, p)
}

// Replies returns one page of direct replies to the given post.
func (s *Service) Replies(ctx context.Context, post *entities.Post, requester *entities.Account, p PaginationRequest) (*PaginationResult[*PostView], error) {
	return s.paginatePosts(ctx, storage.PostFilter{ReplyTo: &post.ID}, requester, p)
}

// SearchPosts returns one page of posts whose text, or whose author's
// handle, display name or bio, contains the query.
func (s *Service) SearchPosts(ctx context.Context, query string, requester *entities.Account, p PaginationRequest) (*PaginationResult[*PostView], error) {
	return s.paginatePosts(ctx, storage.PostFilter{Query: &query}, requester, p)
}

// SearchAccounts returns one page of accounts whose handle, display name
// or bio contains the query.
func (s *Service) SearchAccounts(ctx context.Context, query string, requester *entities.Account, p PaginationRequest) (*PaginationResult[*AccountView], error) {
	return s.paginateAccounts(ctx, storage.AccountFilter{Query: &query}, false, requester, p)
}

// CombinedSearch runs the post and account searches independently against
// the same pagination request. The request is passed by value, so the two
// results cannot share state.
func (s *Service) CombinedSearch(ctx context.Context, query string, requester *entities.Account, p PaginationRequest) (*PaginationResult[*PostView], *PaginationResult[*AccountView], error) {
	posts, err := s.SearchPosts(ctx, query, requester, p)
	if err != nil {
		return nil, nil, err
	}

	accounts, err := s.SearchAccounts(ctx, query, requester, p)
	if err != nil {
		return nil, nil, err
	}

	return posts, accounts, nil
}

// Suggestions returns one page of accounts the requester does not follow
// yet, ordered by ascending id.
func (s *Service) Suggestions(ctx context.Context, requester *entities.Account, p PaginationRequest) (*PaginationResult[*AccountView], error) {
	return s.paginateAccounts(ctx, storage.AccountFilter{NotFollowedBy: &requester.ID}, true, requester, p)
}

func (s *Service) paginateAccounts(ctx context.Context, f storage.AccountFilter, ascending bool, requester *entities.Account, p PaginationRequest) (*PaginationResult[*AccountView], error) {
	accounts, err := s.storage.ListAccounts(ctx, &storage.ListAccountsParams{
		AccountFilter: f,
		Limit:         p.Limit + 1,
		Offset:        p.Limit * p.Page,
		Ascending:     ascending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	total, err := s.storage.CountAccounts(ctx, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	var requesterID *int64
	if requester != nil {
		requesterID = &requester.ID
	}

	ids := make([]int64, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}

	stats, err := s.storage.GetAccountStats(ctx, requesterID, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to get account stats: %w", err)
	}

	views := make([]*AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, s.exportAccount(a, false, stats[a.ID], requester != nil))
	}

	if len(views) > p.Limit {
		views = views[:p.Limit]
	}

	return &PaginationResult[*AccountView]{
		Limit:         p.Limit,
		Page:          p.Page,
		Total:         total,
		MoreAvailable: len(accounts) > p.Limit,
		Results:       views,
	}, nil
}

// Post exports a single post with depth-1 reference expansion.
func (s *Service) Post(ctx context.Context, id int64, requester *entities.Account) (*PostView, error) {
	post, err := s.storage.GetPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	views, err := s.convertToViews(ctx, []*entities.Post{post}, requester)
	if err != nil {
		return nil, err
	}

	if len(views) == 0 {
		return nil, storage.ErrNotFound
	}

	return views[0], nil
}

// Account exports a single account. includeSecrets must only be set when
// the account views itself.
func (s *Service) Account(ctx context.Context, account *entities.Account, includeSecrets bool, requester *entities.Account) (*AccountView, error) {
	var requesterID *int64
	if requester != nil {
		requesterID = &requester.ID
	}

	stats, err := s.storage.GetAccountStats(ctx, requesterID, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account stats: %w", err)
	}

	return s.exportAccount(account, includeSecrets, stats[account.ID], requester != nil), nil
}
