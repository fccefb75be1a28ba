package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/feed"
	"github.com/finchsocial/finch/internal/storage"
	"github.com/finchsocial/finch/internal/storage/mock"
)

var timestamp = time.UnixMilli(1000).UTC()

func newTestServer(s storage.Storage) server {
	return server{
		s:          s,
		f:          feed.New(s, ""),
		bcryptCost: bcrypt.MinCost,
	}
}

func Test_register(t *testing.T) {
	body := `{"handle":"ada","displayName":"Ada","bio":"","password":"super-secret"}`

	r, err := http.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(body))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s := mock.NewMockStorage(ctrl)

	s.EXPECT().GetAccountByHandle(gomock.Any(), "ada").Return(nil, storage.ErrNotFound)
	s.EXPECT().GetAccountByAPIToken(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

	s.EXPECT().CreateAccount(gomock.Any(), gomock.Any()).Do(func(_ context.Context, p *storage.CreateAccountParams) {
		assert.Equal(t, "ada", p.Handle)
		assert.Equal(t, "Ada", p.DisplayName)
		assert.NotEmpty(t, p.APIToken)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("super-secret")))
	}).Return(&entities.Account{
		ID:          1,
		Handle:      "ada",
		DisplayName: "Ada",
		APIToken:    "token",
		CreatedAt:   timestamp,
	}, nil)

	s.EXPECT().GetAccountStats(gomock.Any(), gomock.Any(), int64(1)).Return(map[int64]storage.AccountStats{}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s)
	router.Post("/v1/accounts", srv.register)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `
{
   "id":1,
   "handle":"ada",
   "displayName":"Ada",
   "bio":"",
   "avatarUrl":"",
   "createdAt":1000,
   "followerCount":0,
   "followingCount":0,
   "postCount":0,
   "isFollowing":false,
   "isFollowingBack":false,
   "apiToken":"token"
}
	`, w.Body.String())
}

func Test_register_handleInUse(t *testing.T) {
	body := `{"handle":"ada","displayName":"Ada","bio":"","password":"super-secret"}`

	r, err := http.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(body))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s := mock.NewMockStorage(ctrl)

	s.EXPECT().GetAccountByHandle(gomock.Any(), "ada").Return(&entities.Account{ID: 1}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s)
	router.Post("/v1/accounts", srv.register)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"handle in use"}`, w.Body.String())
}

func Test_register_invalid(t *testing.T) {
	tt := []struct {
		name string
		body string
	}{
		{"short handle", `{"handle":"a","displayName":"Ada","password":"super-secret"}`},
		{"empty display name", `{"handle":"ada","displayName":"","password":"super-secret"}`},
		{"short password", `{"handle":"ada","displayName":"Ada","password":"short"}`},
		{"malformed body", `{`},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(tc.body))
			require.NoError(t, err)

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			router := chi.NewRouter()
			srv := newTestServer(mock.NewMockStorage(ctrl))
			router.Post("/v1/accounts", srv.register)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func Test_login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	account := &entities.Account{
		ID:           1,
		Handle:       "ada",
		DisplayName:  "Ada",
		APIToken:     "token",
		PasswordHash: string(hash),
		CreatedAt:    timestamp,
	}

	t.Run("ok", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"handle":"ada","password":"super-secret"}`))
		require.NoError(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByHandle(gomock.Any(), "ada").Return(account, nil)
		s.EXPECT().GetAccountStats(gomock.Any(), gomock.Any(), int64(1)).Return(map[int64]storage.AccountStats{}, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.Post("/v1/sessions", srv.login)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"apiToken":"token"`)
	})

	t.Run("wrong password", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"handle":"ada","password":"wrong-secret"}`))
		require.NoError(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByHandle(gomock.Any(), "ada").Return(account, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.Post("/v1/sessions", srv.login)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"invalid credentials"}`, w.Body.String())
	})

	t.Run("unknown handle", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"handle":"nobody","password":"super-secret"}`))
		require.NoError(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByHandle(gomock.Any(), "nobody").Return(nil, storage.ErrNotFound)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.Post("/v1/sessions", srv.login)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func Test_session(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/session", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(&entities.Account{
			ID:        1,
			Handle:    "ada",
			APIToken:  "token",
			CreatedAt: timestamp,
		}, nil)
		s.EXPECT().GetAccountStats(gomock.Any(), gomock.Any(), int64(1)).Return(map[int64]storage.AccountStats{}, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Get("/v1/session", srv.session)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"apiToken":"token"`)
	})

	t.Run("missing token", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/session", nil)
		require.NoError(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		router := chi.NewRouter()
		srv := newTestServer(mock.NewMockStorage(ctrl))
		router.With(srv.authenticate).Get("/v1/session", srv.session)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/session", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer bad")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "bad").Return(nil, storage.ErrNotFound)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Get("/v1/session", srv.session)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func Test_getAccount(t *testing.T) {
	account := &entities.Account{
		ID:          2,
		Handle:      "grace",
		DisplayName: "Grace",
		APIToken:    "secret",
		CreatedAt:   timestamp,
	}

	t.Run("anonymous by handle", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/accounts/grace", nil)
		require.NoError(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByHandle(gomock.Any(), "grace").Return(account, nil)
		s.EXPECT().GetAccountStats(gomock.Any(), gomock.Nil(), int64(2)).Return(map[int64]storage.AccountStats{
			2: {Followers: 3, Following: 1, Posts: 5},
		}, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.maybeAuthenticate).Get("/v1/accounts/{id}", srv.getAccount)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `
{
   "id":2,
   "handle":"grace",
   "displayName":"Grace",
   "bio":"",
   "avatarUrl":"",
   "createdAt":1000,
   "followerCount":3,
   "followingCount":1,
   "postCount":5
}
		`, w.Body.String())
	})

	t.Run("authenticated by id", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/accounts/2", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(&entities.Account{ID: 9}, nil)
		s.EXPECT().GetAccount(gomock.Any(), int64(2)).Return(account, nil)
		s.EXPECT().GetAccountStats(gomock.Any(), gomock.Any(), int64(2)).Do(func(_ context.Context, relativeTo *int64, _ ...int64) {
			require.NotNil(t, relativeTo)
			assert.EqualValues(t, 9, *relativeTo)
		}).Return(map[int64]storage.AccountStats{
			2: {IsFollowing: true},
		}, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.maybeAuthenticate).Get("/v1/accounts/{id}", srv.getAccount)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"isFollowing":true`)
		assert.Contains(t, w.Body.String(), `"isFollowingBack":false`)
		assert.NotContains(t, w.Body.String(), "apiToken")
	})

	t.Run("not found", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/accounts/404", nil)
		require.NoError(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccount(gomock.Any(), int64(404)).Return(nil, storage.ErrNotFound)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.maybeAuthenticate).Get("/v1/accounts/{id}", srv.getAccount)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func Test_follow(t *testing.T) {
	requester := &entities.Account{ID: 1, Handle: "ada", APIToken: "token", CreatedAt: timestamp}
	target := &entities.Account{ID: 2, Handle: "grace", CreatedAt: timestamp}

	t.Run("ok", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodPost, "/v1/accounts/2/follow", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(requester, nil)
		s.EXPECT().GetAccount(gomock.Any(), int64(2)).Return(target, nil)
		s.EXPECT().Follow(gomock.Any(), int64(1), int64(2)).Return(nil)
		s.EXPECT().GetAccountStats(gomock.Any(), gomock.Any(), int64(2)).Return(map[int64]storage.AccountStats{
			2: {Followers: 1, IsFollowing: true},
		}, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Post("/v1/accounts/{id}/follow", srv.follow)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"isFollowing":true`)
	})

	t.Run("self", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodPost, "/v1/accounts/1/follow", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(requester, nil)
		s.EXPECT().GetAccount(gomock.Any(), int64(1)).Return(requester, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Post("/v1/accounts/{id}/follow", srv.follow)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"cannot follow self"}`, w.Body.String())
	})
}

func Test_getPost(t *testing.T) {
	replyTo := int64(4)

	r, err := http.NewRequest(http.MethodGet, "/v1/posts/5", nil)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s := mock.NewMockStorage(ctrl)

	s.EXPECT().GetPost(gomock.Any(), int64(5)).Return(&entities.Post{
		ID:        5,
		Author:    1,
		Text:      "hello",
		CreatedAt: timestamp,
		ReplyTo:   &replyTo,
	}, nil)

	s.EXPECT().GetPosts(gomock.Any(), int64(4)).Return(map[int64]*entities.Post{
		4: {ID: 4, Author: 2, Text: "original", CreatedAt: timestamp},
	}, nil)

	s.EXPECT().GetAccounts(gomock.Any(), int64(1), int64(2)).Return(map[int64]*entities.Account{
		1: {ID: 1, Handle: "ada", DisplayName: "Ada", CreatedAt: timestamp},
		2: {ID: 2, Handle: "grace", DisplayName: "Grace", CreatedAt: timestamp},
	}, nil)

	s.EXPECT().GetPostStats(gomock.Any(), gomock.Nil(), int64(5), int64(4)).Return(map[int64]storage.PostStats{
		5: {Likes: 2},
		4: {Likes: 7},
	}, nil)

	s.EXPECT().GetAccountStats(gomock.Any(), gomock.Nil(), int64(1), int64(2)).Return(map[int64]storage.AccountStats{
		1: {Posts: 1},
		2: {Posts: 3},
	}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s)
	router.With(srv.maybeAuthenticate).Get("/v1/posts/{id}", srv.getPost)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `
{
   "id":5,
   "author":{
      "id":1,
      "handle":"ada",
      "displayName":"Ada",
      "bio":"",
      "avatarUrl":"",
      "createdAt":1000,
      "followerCount":0,
      "followingCount":0,
      "postCount":1
   },
   "createdAt":1000,
   "text":"hello",
   "attachments":[],
   "likeCount":2,
   "replyTo":{
      "id":4,
      "author":{
         "id":2,
         "handle":"grace",
         "displayName":"Grace",
         "bio":"",
         "avatarUrl":"",
         "createdAt":1000,
         "followerCount":0,
         "followingCount":0,
         "postCount":3
      },
      "createdAt":1000,
      "text":"original",
      "attachments":[],
      "likeCount":7
   }
}
	`, w.Body.String())
}

func Test_createPost(t *testing.T) {
	requester := &entities.Account{ID: 1, Handle: "ada", APIToken: "token", CreatedAt: timestamp}

	setup := func(t *testing.T) (*mock.MockStorage, *chi.Mux) {
		ctrl := gomock.NewController(t)
		t.Cleanup(ctrl.Finish)

		s := mock.NewMockStorage(ctrl)
		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(requester, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Post("/v1/posts", srv.createPost)

		return s, router
	}

	post := func(t *testing.T, router *chi.Mux, body string) *httptest.ResponseRecorder {
		r, err := http.NewRequest(http.MethodPost, "/v1/posts", strings.NewReader(body))
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		return w
	}

	t.Run("ok", func(t *testing.T) {
		s, router := setup(t)

		s.EXPECT().CreatePost(gomock.Any(), gomock.Any()).Do(func(_ context.Context, p *storage.CreatePostParams) {
			assert.EqualValues(t, 1, p.Author)
			assert.Equal(t, "hello", p.Text)
		}).Return(&entities.Post{ID: 10, Author: 1, Text: "hello", CreatedAt: timestamp}, nil)

		s.EXPECT().GetPost(gomock.Any(), int64(10)).Return(&entities.Post{ID: 10, Author: 1, Text: "hello", CreatedAt: timestamp}, nil)
		s.EXPECT().GetPosts(gomock.Any()).Return(map[int64]*entities.Post{}, nil)
		s.EXPECT().GetAccounts(gomock.Any(), int64(1)).Return(map[int64]*entities.Account{1: requester}, nil)
		s.EXPECT().GetPostStats(gomock.Any(), gomock.Any(), int64(10)).Return(map[int64]storage.PostStats{}, nil)
		s.EXPECT().GetAccountStats(gomock.Any(), gomock.Any(), int64(1)).Return(map[int64]storage.AccountStats{}, nil)

		w := post(t, router, `{"text":"hello"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"text":"hello"`)
	})

	t.Run("missing text", func(t *testing.T) {
		_, router := setup(t)

		w := post(t, router, `{"attachments":["a.png"]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"missing text"}`, w.Body.String())
	})

	t.Run("text too long", func(t *testing.T) {
		_, router := setup(t)

		w := post(t, router, fmt.Sprintf(`{"text":%q}`, strings.Repeat("a", maxTextLength+1)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many attachments", func(t *testing.T) {
		_, router := setup(t)

		w := post(t, router, `{"text":"x","attachments":["1","2","3","4","5"]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown reply target", func(t *testing.T) {
		s, router := setup(t)

		s.EXPECT().GetPost(gomock.Any(), int64(99)).Return(nil, storage.ErrNotFound)

		w := post(t, router, `{"text":"x","replyToId":99}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid replyToId"}`, w.Body.String())
	})
}

func Test_deletePost(t *testing.T) {
	requester := &entities.Account{ID: 1, APIToken: "token"}

	t.Run("ok", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodDelete, "/v1/posts/10", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(requester, nil)
		s.EXPECT().GetPost(gomock.Any(), int64(10)).Return(&entities.Post{ID: 10, Author: 1}, nil)
		s.EXPECT().DeletePost(gomock.Any(), int64(10)).Return(nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Delete("/v1/posts/{id}", srv.deletePost)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("foreign post", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodDelete, "/v1/posts/10", nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer token")

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		s := mock.NewMockStorage(ctrl)

		s.EXPECT().GetAccountByAPIToken(gomock.Any(), "token").Return(requester, nil)
		s.EXPECT().GetPost(gomock.Any(), int64(10)).Return(&entities.Post{ID: 10, Author: 2}, nil)

		router := chi.NewRouter()
		srv := newTestServer(s)
		router.With(srv.authenticate).Delete("/v1/posts/{id}", srv.deletePost)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func Test_accountPosts_invalidLimit(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/v1/accounts/1/posts?limit=-1", nil)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s := mock.NewMockStorage(ctrl)

	s.EXPECT().GetAccount(gomock.Any(), int64(1)).Return(&entities.Account{ID: 1}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s)
	router.With(srv.maybeAuthenticate).Get("/v1/accounts/{id}/posts", srv.accountPosts)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func Test_searchPosts_missingQuery(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/v1/search/posts", nil)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := chi.NewRouter()
	srv := newTestServer(mock.NewMockStorage(ctrl))
	router.With(srv.maybeAuthenticate).Get("/v1/search/posts", srv.searchPosts)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing query"}`, w.Body.String())
}

func Test_combinedSearch(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/v1/search?q=go&limit=2", nil)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	s := mock.NewMockStorage(ctrl)

	s.EXPECT().ListPosts(gomock.Any(), gomock.Any()).Return([]*entities.Post{}, nil)
	s.EXPECT().CountPosts(gomock.Any(), gomock.Any()).Return(0, nil)
	s.EXPECT().GetPosts(gomock.Any()).Return(map[int64]*entities.Post{}, nil)
	s.EXPECT().GetAccounts(gomock.Any()).Return(map[int64]*entities.Account{}, nil)
	s.EXPECT().GetPostStats(gomock.Any(), gomock.Nil()).Return(map[int64]storage.PostStats{}, nil)
	s.EXPECT().GetAccountStats(gomock.Any(), gomock.Nil()).Return(map[int64]storage.AccountStats{}, nil)

	s.EXPECT().ListAccounts(gomock.Any(), gomock.Any()).Return([]*entities.Account{
		{ID: 1, Handle: "gopher", DisplayName: "Gopher", CreatedAt: timestamp},
	}, nil)
	s.EXPECT().CountAccounts(gomock.Any(), gomock.Any()).Return(1, nil)
	s.EXPECT().GetAccountStats(gomock.Any(), gomock.Nil(), int64(1)).Return(map[int64]storage.AccountStats{}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s)
	router.With(srv.maybeAuthenticate).Get("/v1/search", srv.combinedSearch)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `
{
   "posts":{
      "limit":2,
      "page":0,
      "total":0,
      "moreAvailable":false,
      "results":[]
   },
   "accounts":{
      "limit":2,
      "page":0,
      "total":1,
      "moreAvailable":false,
      "results":[
         {
            "id":1,
            "handle":"gopher",
            "displayName":"Gopher",
            "bio":"",
            "avatarUrl":"",
            "createdAt":1000,
            "followerCount":0,
            "followingCount":0,
            "postCount":0
         }
      ]
   }
}
	`, w.Body.String())
}
