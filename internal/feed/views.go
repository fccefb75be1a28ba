package feed

import (
	"encoding/json"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/storage"
)

// AccountView is the public representation of an account. The relationship
// flags are present only when the view was built for a known requester;
// APIToken is present only when the account views itself.
type AccountView struct {
	ID              int64  `json:"id"`
	Handle          string `json:"handle"`
	DisplayName     string `json:"displayName"`
	Bio             string `json:"bio"`
	AvatarURL       string `json:"avatarUrl"`
	CreatedAt       int64  `json:"createdAt"`
	FollowerCount   int    `json:"followerCount"`
	FollowingCount  int    `json:"followingCount"`
	PostCount       int    `json:"postCount"`
	IsFollowing     *bool  `json:"isFollowing,omitempty"`
	IsFollowingBack *bool  `json:"isFollowingBack,omitempty"`
	APIToken        string `json:"apiToken,omitempty"`
}

// PostView is the public representation of a post.
type PostView struct {
	ID          int64          `json:"id"`
	Author      *AccountView   `json:"author"`
	CreatedAt   int64          `json:"createdAt"`
	Text        string         `json:"text"`
	Attachments []string       `json:"attachments"`
	LikeCount   int            `json:"likeCount"`
	HasLiked    *bool          `json:"hasLiked,omitempty"`
	ReplyTo     *PostReference `json:"replyTo,omitempty"`
	RepostOf    *PostReference `json:"repostOf,omitempty"`
}

// PostReference is a reply-to/repost-of link. A resolved reference carries
// the fully exported target view; an unresolved one marshals as the bare
// numeric id so clients can still render "reply to #id".
type PostReference struct {
	ID   int64
	View *PostView
}

// MarshalJSON emits the nested view when the reference is resolved,
// otherwise the bare numeric id.
func (r PostReference) MarshalJSON() ([]byte, error) {
	if r.View != nil {
		return json.Marshal(r.View)
	}

	return json.Marshal(r.ID)
}

// exportAccount assembles an AccountView from a raw account and
// precomputed stats. withFlags governs the presence of the relationship
// flags and must reflect whether a requester identity was supplied for the
// whole batch.
func (s *Service) exportAccount(a *entities.Account, includeSecrets bool, st storage.AccountStats, withFlags bool) *AccountView {
	out := &AccountView{
		ID:             a.ID,
		Handle:         a.Handle,
		DisplayName:    a.DisplayName,
		Bio:            a.Bio,
		AvatarURL:      s.assetPrefix + a.Avatar,
		CreatedAt:      a.CreatedAt.UnixMilli(),
		FollowerCount:  st.Followers,
		FollowingCount: st.Following,
		PostCount:      st.Posts,
	}

	if withFlags {
		isFollowing, isFollowingBack := st.IsFollowing, st.IsFollowedBy
		out.IsFollowing = &isFollowing
		out.IsFollowingBack = &isFollowingBack
	}

	if includeSecrets {
		out.APIToken = a.APIToken
	}

	return out
}

// exportPost assembles a PostView from a raw post, its exported author and
// precomputed stats. replyTo/repostOf are prepared by the caller; passing
// nil means the post carries no such reference.
func (s *Service) exportPost(p *entities.Post, author *AccountView, st storage.PostStats, withFlags bool, replyTo, repostOf *PostReference) *PostView {
	out := &PostView{
		ID:          p.ID,
		Author:      author,
		CreatedAt:   p.CreatedAt.UnixMilli(),
		Text:        p.Text,
		Attachments: s.attachmentURLs(p),
		LikeCount:   st.Likes,
		ReplyTo:     replyTo,
		RepostOf:    repostOf,
	}

	if withFlags {
		hasLiked := st.Liked
		out.HasLiked = &hasLiked
	}

	return out
}

func (s *Service) attachmentURLs(p *entities.Post) []string {
	out := make([]string, len(p.Attachments))
	for i, a := range p.Attachments {
		out[i] = s.assetPrefix + a
	}

	return out
}
