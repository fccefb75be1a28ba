package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/feed"
	"github.com/finchsocial/finch/internal/storage"
)

func (s server) register(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /accounts Accounts Register
	//
	// Register a new account.
	//
	// ---
	// parameters:
	// - name: body
	//   in: body
	//   required: true
	//   schema:
	//     "$ref": "#/definitions/RegisterRequest"
	// responses:
	//   '201':
	//     description: the created account, including its api token
	//   '400':
	//     description: bad request
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '500':
	//     description: internal server error
	//     schema:
	//       "$ref": "#/definitions/Error"

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	if !isStringValid(req.Handle, 2, 40) {
		writeError(w, http.StatusBadRequest, "invalid handle")
		return
	}
	if !isStringValid(req.DisplayName, 1, 120) {
		writeError(w, http.StatusBadRequest, "invalid displayName")
		return
	}
	if !isStringValid(req.Bio, 0, 280) {
		writeError(w, http.StatusBadRequest, "invalid bio")
		return
	}
	if !isStringValid(req.Password, 8, 200) {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}

	if _, err := s.s.GetAccountByHandle(r.Context(), req.Handle); err == nil {
		writeError(w, http.StatusBadRequest, "handle in use")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeInternalError(w, err, "failed to check handle")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		writeInternalError(w, err, "failed to hash password")
		return
	}

	token, err := s.generateAPIToken(r)
	if err != nil {
		writeInternalError(w, err, "failed to generate api token")
		return
	}

	account, err := s.s.CreateAccount(r.Context(), &storage.CreateAccountParams{
		Handle:       req.Handle,
		DisplayName:  req.DisplayName,
		Bio:          req.Bio,
		APIToken:     token,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "handle in use")
			return
		}
		writeInternalError(w, err, "failed to create account")
		return
	}

	view, err := s.f.Account(r.Context(), account, true, account)
	if err != nil {
		writeInternalError(w, err, "failed to export account")
		return
	}

	writeOK(w, http.StatusCreated, view)
}

// generateAPIToken rolls opaque tokens until an unused one is found.
func (s server) generateAPIToken(r *http.Request) (string, error) {
	for {
		token := uuid.NewString()

		if _, err := s.s.GetAccountByAPIToken(r.Context(), token); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return token, nil
			}

			return "", err
		}
	}
}

func (s server) login(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /sessions Accounts Login
	//
	// Exchange handle and password for the account's api token.
	//
	// ---
	// responses:
	//   '200':
	//     description: the account, including its api token
	//   '401':
	//     description: invalid credentials

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	account, err := s.s.GetAccountByHandle(r.Context(), req.Handle)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeInternalError(w, err, "failed to get account")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	view, err := s.f.Account(r.Context(), account, true, account)
	if err != nil {
		writeInternalError(w, err, "failed to export account")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) session(w http.ResponseWriter, r *http.Request) {
	requester := requesterFromContext(r.Context())

	view, err := s.f.Account(r.Context(), requester, true, requester)
	if err != nil {
		writeInternalError(w, err, "failed to export account")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) getAccount(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /accounts/{id} Accounts GetAccount
	//
	// Get account by numeric id or handle. With a bearer token the view
	// carries relationship flags relative to the requester.
	//
	// ---
	// responses:
	//   '200':
	//     description: the account
	//   '404':
	//     description: account not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	account, ok := s.accountFromURL(w, r)
	if !ok {
		return
	}

	requester := requesterFromContext(r.Context())

	view, err := s.f.Account(r.Context(), account, requester != nil && requester.ID == account.ID, requester)
	if err != nil {
		writeInternalError(w, err, "failed to export account")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) updateAccount(w http.ResponseWriter, r *http.Request) {
	requester := requesterFromContext(r.Context())

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	params := storage.UpdateAccountParams{
		ID:          requester.ID,
		Handle:      requester.Handle,
		DisplayName: requester.DisplayName,
		Bio:         requester.Bio,
		Avatar:      requester.Avatar,
	}

	if req.Handle != nil {
		params.Handle = *req.Handle
	}
	if req.DisplayName != nil {
		params.DisplayName = *req.DisplayName
	}
	if req.Bio != nil {
		params.Bio = *req.Bio
	}
	if req.Avatar != nil {
		params.Avatar = *req.Avatar
	}

	if !isStringValid(params.Handle, 2, 40) {
		writeError(w, http.StatusBadRequest, "invalid handle")
		return
	}
	if !isStringValid(params.DisplayName, 1, 120) {
		writeError(w, http.StatusBadRequest, "invalid displayName")
		return
	}
	if !isStringValid(params.Bio, 0, 280) {
		writeError(w, http.StatusBadRequest, "invalid bio")
		return
	}

	if params.Handle != requester.Handle {
		if existing, err := s.s.GetAccountByHandle(r.Context(), params.Handle); err == nil && existing.ID != requester.ID {
			writeError(w, http.StatusBadRequest, "handle in use")
			return
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			writeInternalError(w, err, "failed to check handle")
			return
		}
	}

	account, err := s.s.UpdateAccount(r.Context(), &params)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "handle in use")
			return
		}
		writeInternalError(w, err, "failed to update account")
		return
	}

	view, err := s.f.Account(r.Context(), account, true, account)
	if err != nil {
		writeInternalError(w, err, "failed to export account")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) follow(w http.ResponseWriter, r *http.Request) {
	s.setFollow(w, r, true)
}

func (s server) unfollow(w http.ResponseWriter, r *http.Request) {
	s.setFollow(w, r, false)
}

func (s server) setFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	requester := requesterFromContext(r.Context())

	target, ok := s.accountFromURL(w, r)
	if !ok {
		return
	}

	if target.ID == requester.ID {
		writeError(w, http.StatusBadRequest, "cannot follow self")
		return
	}

	var err error
	if follow {
		err = s.s.Follow(r.Context(), requester.ID, target.ID)
	} else {
		err = s.s.Unfollow(r.Context(), requester.ID, target.ID)
	}
	if err != nil {
		writeInternalError(w, err, "failed to change follow state")
		return
	}

	view, err := s.f.Account(r.Context(), target, false, requester)
	if err != nil {
		writeInternalError(w, err, "failed to export account")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) accountPosts(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /accounts/{id}/posts Feeds AccountPosts
	//
	// Return one page of the account's posts, newest first.
	//
	// ---
	// parameters:
	// - name: limit
	//   in: query
	//   required: false
	//   default: 20
	//   maximum: 50
	// - name: page
	//   in: query
	//   required: false
	//   default: 0
	// responses:
	//   '200':
	//     description: page of posts

	account, ok := s.accountFromURL(w, r)
	if !ok {
		return
	}

	p, ok := derivePagination(w, r, defaultLimit)
	if !ok {
		return
	}

	result, err := s.f.AccountPosts(r.Context(), account, requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to build account posts")
		return
	}

	writeOK(w, http.StatusOK, result)
}

func (s server) homeTimeline(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /timeline Feeds HomeTimeline
	//
	// Return one page of non-reply posts authored by the requester or by
	// accounts the requester follows, newest first.
	//
	// ---
	// responses:
	//   '200':
	//     description: page of posts

	p, ok := derivePagination(w, r, defaultLimit)
	if !ok {
		return
	}

	result, err := s.f.HomeTimeline(r.Context(), requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to build home timeline")
		return
	}

	writeOK(w, http.StatusOK, result)
}

func (s server) suggestions(w http.ResponseWriter, r *http.Request) {
	p, ok := derivePagination(w, r, defaultSuggestionsLimit)
	if !ok {
		return
	}

	result, err := s.f.Suggestions(r.Context(), requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to build suggestions")
		return
	}

	writeOK(w, http.StatusOK, result)
}

func (s server) createPost(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /posts Posts CreatePost
	//
	// Create a post, optionally as a reply to or repost of an existing
	// post.
	//
	// ---
	// responses:
	//   '201':
	//     description: the created post
	//   '400':
	//     description: bad request
	//     schema:
	//       "$ref": "#/definitions/Error"

	requester := requesterFromContext(r.Context())

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "missing text")
		return
	}
	if !isStringValid(*req.Text, 0, maxTextLength) {
		writeError(w, http.StatusBadRequest, "invalid text")
		return
	}
	if len(req.Attachments) > maxAttachments {
		writeError(w, http.StatusBadRequest, "too many attachments")
		return
	}

	for name, ref := range map[string]*int64{"replyToId": req.ReplyToID, "repostOfId": req.RepostOfID} {
		if ref == nil {
			continue
		}
		if _, err := s.s.GetPost(r.Context(), *ref); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			writeInternalError(w, err, "failed to check reference target")
			return
		}
	}

	post, err := s.s.CreatePost(r.Context(), &storage.CreatePostParams{
		Author:      requester.ID,
		Text:        *req.Text,
		Attachments: req.Attachments,
		ReplyTo:     req.ReplyToID,
		RepostOf:    req.RepostOfID,
	})
	if err != nil {
		writeInternalError(w, err, "failed to create post")
		return
	}

	view, err := s.f.Post(r.Context(), post.ID, requester)
	if err != nil {
		writeInternalError(w, err, "failed to export post")
		return
	}

	writeOK(w, http.StatusCreated, view)
}

func (s server) getPost(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /posts/{id} Posts GetPost
	//
	// Get post by id with its reply/repost reference expanded one level.
	//
	// ---
	// responses:
	//   '200':
	//     description: the post
	//   '404':
	//     description: post not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	view, err := s.f.Post(r.Context(), id, requesterFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err, "failed to export post")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) deletePost(w http.ResponseWriter, r *http.Request) {
	requester := requesterFromContext(r.Context())

	post, ok := s.postFromURL(w, r)
	if !ok {
		return
	}

	if post.Author != requester.ID {
		writeError(w, http.StatusForbidden, "no permission")
		return
	}

	if err := s.s.DeletePost(r.Context(), post.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err, "failed to delete post")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s server) likePost(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, true)
}

func (s server) unlikePost(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, false)
}

func (s server) setLike(w http.ResponseWriter, r *http.Request, like bool) {
	requester := requesterFromContext(r.Context())

	post, ok := s.postFromURL(w, r)
	if !ok {
		return
	}

	var err error
	if like {
		err = s.s.Like(r.Context(), post.ID, requester.ID)
	} else {
		err = s.s.Unlike(r.Context(), post.ID, requester.ID)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err, "failed to change like state")
		return
	}

	view, err := s.f.Post(r.Context(), post.ID, requester)
	if err != nil {
		writeInternalError(w, err, "failed to export post")
		return
	}

	writeOK(w, http.StatusOK, view)
}

func (s server) replies(w http.ResponseWriter, r *http.Request) {
	post, ok := s.postFromURL(w, r)
	if !ok {
		return
	}

	p, ok := derivePagination(w, r, defaultLimit)
	if !ok {
		return
	}

	result, err := s.f.Replies(r.Context(), post, requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to build replies")
		return
	}

	writeOK(w, http.StatusOK, result)
}

func (s server) searchPosts(w http.ResponseWriter, r *http.Request) {
	query, ok := queryFromURL(w, r)
	if !ok {
		return
	}

	p, ok := derivePagination(w, r, defaultLimit)
	if !ok {
		return
	}

	result, err := s.f.SearchPosts(r.Context(), query, requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to search posts")
		return
	}

	writeOK(w, http.StatusOK, result)
}

func (s server) searchAccounts(w http.ResponseWriter, r *http.Request) {
	query, ok := queryFromURL(w, r)
	if !ok {
		return
	}

	p, ok := derivePagination(w, r, defaultLimit)
	if !ok {
		return
	}

	result, err := s.f.SearchAccounts(r.Context(), query, requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to search accounts")
		return
	}

	writeOK(w, http.StatusOK, result)
}

func (s server) combinedSearch(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /search Search CombinedSearch
	//
	// Run the post and account searches independently against the same
	// pagination parameters and return both pages.
	//
	// ---
	// responses:
	//   '200':
	//     description: post and account pages

	query, ok := queryFromURL(w, r)
	if !ok {
		return
	}

	p, ok := derivePagination(w, r, defaultLimit)
	if !ok {
		return
	}

	posts, accounts, err := s.f.CombinedSearch(r.Context(), query, requesterFromContext(r.Context()), p)
	if err != nil {
		writeInternalError(w, err, "failed to search")
		return
	}

	writeOK(w, http.StatusOK, struct {
		Posts    *feed.PaginationResult[*feed.PostView]    `json:"posts"`
		Accounts *feed.PaginationResult[*feed.AccountView] `json:"accounts"`
	}{Posts: posts, Accounts: accounts})
}

// accountFromURL resolves the {id} url param as a numeric id or, failing
// that, as a handle.
func (s server) accountFromURL(w http.ResponseWriter, r *http.Request) (*entities.Account, bool) {
	param := chi.URLParam(r, "id")

	var (
		account *entities.Account
		err     error
	)

	if id, convErr := strconv.ParseInt(param, 10, 64); convErr == nil {
		account, err = s.s.GetAccount(r.Context(), id)
	} else {
		account, err = s.s.GetAccountByHandle(r.Context(), param)
	}

	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return nil, false
		}
		writeInternalError(w, err, "failed to get account")
		return nil, false
	}

	return account, true
}

func (s server) postFromURL(w http.ResponseWriter, r *http.Request) (*entities.Post, bool) {
	id, ok := idFromURL(w, r)
	if !ok {
		return nil, false
	}

	post, err := s.s.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return nil, false
		}
		writeInternalError(w, err, "failed to get post")
		return nil, false
	}

	return post, true
}

func idFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}

	return id, true
}

func queryFromURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return "", false
	}

	return q, true
}

func derivePagination(w http.ResponseWriter, r *http.Request, defLimit int) (feed.PaginationRequest, bool) {
	q := r.URL.Query()

	p, err := feed.DerivePagination(q.Get("limit"), q.Get("page"), defLimit, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return feed.PaginationRequest{}, false
	}

	return p, true
}
