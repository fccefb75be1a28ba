package feed

import (
	"context"
	"fmt"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/storage"
)

// statBatch holds everything needed to export one page of posts: the
// depth-1 reference targets, every involved author row and the aggregate
// stats for both id sets. It is built with a bounded number of store
// queries regardless of the page size.
type statBatch struct {
	targets      map[int64]*entities.Post
	authors      map[int64]*entities.Account
	postStats    map[int64]storage.PostStats
	accountStats map[int64]storage.AccountStats
	hasRequester bool
}

// loadBatch fetches reference targets, authors and aggregate stats for a
// candidate page. Ids are deduplicated before querying; an id that vanished
// between the candidate fetch and the batch simply yields no entry, which
// callers treat as an unresolvable reference with a zero stat bundle.
func (s *Service) loadBatch(ctx context.Context, posts []*entities.Post, requester *entities.Account) (*statBatch, error) {
	targetIDs := make([]int64, 0, len(posts)*2)
	seenTargets := make(map[int64]struct{})

	for _, p := range posts {
		for _, ref := range []*int64{p.ReplyTo, p.RepostOf} {
			if ref == nil {
				continue
			}
			if _, ok := seenTargets[*ref]; ok {
				continue
			}
			seenTargets[*ref] = struct{}{}
			targetIDs = append(targetIDs, *ref)
		}
	}

	targets, err := s.storage.GetPosts(ctx, targetIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference targets: %w", err)
	}

	postIDs := make([]int64, 0, len(posts)+len(targets))
	authorIDs := make([]int64, 0, len(posts)+len(targets))
	seenPosts := make(map[int64]struct{})
	seenAuthors := make(map[int64]struct{})

	collect := func(p *entities.Post) {
		if _, ok := seenPosts[p.ID]; !ok {
			seenPosts[p.ID] = struct{}{}
			postIDs = append(postIDs, p.ID)
		}
		if _, ok := seenAuthors[p.Author]; !ok {
			seenAuthors[p.Author] = struct{}{}
			authorIDs = append(authorIDs, p.Author)
		}
	}

	for _, p := range posts {
		collect(p)
	}
	for _, t := range targets {
		collect(t)
	}

	authors, err := s.storage.GetAccounts(ctx, authorIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get authors: %w", err)
	}

	var requesterID *int64
	if requester != nil {
		requesterID = &requester.ID
	}

	postStats, err := s.storage.GetPostStats(ctx, requesterID, postIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get post stats: %w", err)
	}

	accountStats, err := s.storage.GetAccountStats(ctx, requesterID, authorIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get account stats: %w", err)
	}

	return &statBatch{
		targets:      targets,
		authors:      authors,
		postStats:    postStats,
		accountStats: accountStats,
		hasRequester: requester != nil,
	}, nil
}

// resolveReference expands a reply-to/repost-of id using data already in
// the batch. The nested view carries its own author and stats, but its own
// references stay bare ids: expansion is bounded to depth 1 and cannot
// recurse through cyclic rows. A target that vanished degrades to the bare
// id.
func (s *Service) resolveReference(id *int64, b *statBatch) *PostReference {
	if id == nil {
		return nil
	}

	target, ok := b.targets[*id]
	if !ok {
		return &PostReference{ID: *id}
	}

	author, ok := b.authors[target.Author]
	if !ok {
		return &PostReference{ID: *id}
	}

	view := s.exportPost(
		target,
		s.exportAccount(author, false, b.accountStats[target.Author], b.hasRequester),
		b.postStats[target.ID],
		b.hasRequester,
		bareReference(target.ReplyTo),
		bareReference(target.RepostOf),
	)

	return &PostReference{ID: *id, View: view}
}

func bareReference(id *int64) *PostReference {
	if id == nil {
		return nil
	}

	return &PostReference{ID: *id}
}
