package web_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/database/sqlite3"
	"github.com/nasermirzaei89/agora/database/sqlstore"
	"github.com/nasermirzaei89/agora/interactions"
	"github.com/nasermirzaei89/agora/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *web.Handler {
	t.Helper()

	h, _ := newTestHandlerWithDB(t, nil, web.RateLimit{})

	return h
}

func newTestHandlerWithDB(t *testing.T, trustedProxies []string, rateLimit web.RateLimit) (*web.Handler, *sql.DB) {
	t.Helper()

	ctx := context.Background()

	db, err := sqlite3.NewDB(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite3.MigrateUp(ctx, db))

	postRepo := sqlstore.NewPostRepository(db, sqlite3.Dialect)
	authSvc := authentication.NewService(
		sqlstore.NewUserRepository(db, sqlite3.Dialect),
		sqlstore.NewSessionRepository(db, sqlite3.Dialect),
		time.Hour,
	)

	h, err := web.NewHandler(
		authSvc,
		authentication.NewTokenManager([]byte("test-secret")),
		contents.NewService(postRepo),
		interactions.NewService(sqlstore.NewInteractionRepository(db, sqlite3.Dialect), postRepo, authSvc, nil),
		sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		"agora-test",
		nil,
		trustedProxies,
		rateLimit,
	)
	require.NoError(t, err)

	return h, db
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}

	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")

	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}

	for _, cookie := range req.cookies {
		r.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

type signInResult struct {
	Token string `json:"token"`
	User  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

func signUpAndIn(t *testing.T, h http.Handler, name, email string) (signInResult, []*http.Cookie) {
	t.Helper()

	rec := do(t, h, request{
		method: http.MethodPost,
		path:   "/users/signup",
		body:   map[string]string{"name": name, "email": email, "password": "secret123"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, request{
		method: http.MethodPost,
		path:   "/users/signin",
		body:   map[string]string{"email": email, "password": "secret123"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return decode[signInResult](t, rec), rec.Result().Cookies()
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

type postBody struct {
	ID            string `json:"id"`
	AuthorID      string `json:"authorId"`
	Content       string `json:"content"`
	ViewCount     int    `json:"viewCount"`
	UpvoteCount   int    `json:"upvoteCount"`
	DownvoteCount int    `json:"downvoteCount"`
	ReplyCount    int    `json:"replyCount"`
}

type interactionBody struct {
	ID        string  `json:"id"`
	Comment   *string `json:"comment"`
	Upvoted   bool    `json:"upvoted"`
	Downvoted bool    `json:"downvoted"`
	Replies   []struct {
		Comment string `json:"comment"`
	} `json:"replies"`
}

type commentBody struct {
	ID      string `json:"id"`
	Comment string `json:"comment"`
	User    struct {
		Name string `json:"name"`
	} `json:"user"`
	Replies []struct {
		Comment string `json:"comment"`
		User    struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"replies"`
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	rec := do(t, h, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUsers(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	t.Run("signup validation reports json field names", func(t *testing.T) {
		rec := do(t, h, request{
			method: http.MethodPost,
			path:   "/users/signup",
			body:   map[string]string{"name": "Alice", "email": "not-an-email", "password": "123"},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		body := decode[errorBody](t, rec)
		assert.Contains(t, body.Fields, "email")
		assert.Contains(t, body.Fields, "password")
	})

	result, cookies := signUpAndIn(t, h, "Alice", "alice@example.com")
	assert.Equal(t, "Alice", result.User.Name)
	assert.NotEmpty(t, result.Token)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec := do(t, h, request{
			method: http.MethodPost,
			path:   "/users/signup",
			body:   map[string]string{"name": "Other", "email": "ALICE@example.com", "password": "secret123"},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		rec := do(t, h, request{
			method: http.MethodPost,
			path:   "/users/signin",
			body:   map[string]string{"email": "alice@example.com", "password": "wrong-password"},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me requires authentication", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: "/users/me"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage bearer token is rejected", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: "/users/me", token: "garbage"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me with bearer token", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: "/users/me", token: result.Token})
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode[struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}](t, rec)
		assert.Equal(t, result.User.ID, me.ID)
		assert.Equal(t, "alice@example.com", me.Email)
	})

	t.Run("me with session cookie", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: "/users/me", cookies: cookies})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("signout ends the session for both cookie and token", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodPost, path: "/users/signout", cookies: cookies})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, h, request{method: http.MethodGet, path: "/users/me", token: result.Token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, h, request{method: http.MethodGet, path: "/users/me", cookies: cookies})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPostsAndInteractions(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	alice, _ := signUpAndIn(t, h, "Alice", "alice@example.com")
	bob, _ := signUpAndIn(t, h, "Bob", "bob@example.com")

	rec := do(t, h, request{method: http.MethodPost, path: "/posts", body: map[string]string{"content": "hello"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, request{
		method: http.MethodPost,
		path:   "/posts",
		token:  alice.Token,
		body:   map[string]string{"content": "hello", "category": "general"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	post := decode[postBody](t, rec)
	assert.Equal(t, alice.User.ID, post.AuthorID)

	postPath := "/posts/" + post.ID

	t.Run("get counts a view", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: postPath})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decode[postBody](t, rec).ViewCount)
	})

	t.Run("unknown post is not found", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: "/posts/" + uuid.NewString()})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, h, request{method: http.MethodPost, path: "/posts/" + uuid.NewString() + "/upvote", token: bob.Token})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("only the author updates", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodPut, path: postPath, token: bob.Token, body: map[string]string{"content": "hijacked"}})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, request{method: http.MethodPut, path: postPath, token: alice.Token, body: map[string]string{"content": "edited"}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "edited", decode[postBody](t, rec).Content)
	})

	t.Run("votes", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodPost, path: postPath + "/upvote", token: bob.Token})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[interactionBody](t, rec).Upvoted)

		rec = do(t, h, request{method: http.MethodPost, path: postPath + "/upvote", token: bob.Token})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = do(t, h, request{method: http.MethodPost, path: postPath + "/downvote", token: bob.Token})
		require.Equal(t, http.StatusOK, rec.Code)

		vote := decode[interactionBody](t, rec)
		assert.False(t, vote.Upvoted)
		assert.True(t, vote.Downvoted)
	})

	var commentID string

	t.Run("comments and replies", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodPost, path: postPath + "/comments", token: bob.Token, body: map[string]string{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, h, request{method: http.MethodPost, path: postPath + "/comments", token: bob.Token, body: map[string]string{"comment": "nice"}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		comment := decode[interactionBody](t, rec)
		require.NotNil(t, comment.Comment)
		assert.Equal(t, "nice", *comment.Comment)
		assert.True(t, comment.Downvoted)

		commentID = comment.ID

		rec = do(t, h, request{method: http.MethodPost, path: "/comments/" + commentID + "/replies", token: alice.Token, body: map[string]string{"comment": "thanks"}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Len(t, decode[interactionBody](t, rec).Replies, 1)

		rec = do(t, h, request{method: http.MethodPost, path: "/comments/" + uuid.NewString() + "/replies", token: alice.Token, body: map[string]string{"comment": "lost"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, h, request{method: http.MethodGet, path: postPath + "/comments"})
		require.Equal(t, http.StatusOK, rec.Code)

		comments := decode[[]commentBody](t, rec)
		require.Len(t, comments, 1)
		assert.Equal(t, "Bob", comments[0].User.Name)
		assert.Equal(t, "nice", comments[0].Comment)
		require.Len(t, comments[0].Replies, 1)
		assert.Equal(t, "Alice", comments[0].Replies[0].User.Name)
	})

	t.Run("counters follow interactions", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodGet, path: postPath})
		require.Equal(t, http.StatusOK, rec.Code)

		got := decode[postBody](t, rec)
		assert.Equal(t, 0, got.UpvoteCount)
		assert.Equal(t, 1, got.DownvoteCount)
		assert.Equal(t, 2, got.ReplyCount)
	})

	t.Run("only the author deletes", func(t *testing.T) {
		rec := do(t, h, request{method: http.MethodDelete, path: postPath, token: bob.Token})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, h, request{method: http.MethodDelete, path: postPath, token: alice.Token})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, h, request{method: http.MethodGet, path: postPath})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, h, request{method: http.MethodGet, path: postPath + "/comments"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]commentBody](t, rec))
	})
}

func TestInterruptedDeleteConverges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h, db := newTestHandlerWithDB(t, nil, web.RateLimit{})

	alice, _ := signUpAndIn(t, h, "Alice", "alice@example.com")

	rec := do(t, h, request{method: http.MethodPost, path: "/posts", token: alice.Token, body: map[string]string{"content": "hello"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	postID := decode[postBody](t, rec).ID
	postPath := "/posts/" + postID

	rec = do(t, h, request{method: http.MethodPost, path: postPath + "/comments", token: alice.Token, body: map[string]string{"comment": "hi"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// the post row is gone but its interactions were never swept
	require.NoError(t, sqlstore.NewPostRepository(db, sqlite3.Dialect).Delete(ctx, postID))

	rec = do(t, h, request{method: http.MethodGet, path: postPath + "/comments"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]commentBody](t, rec))

	rec = do(t, h, request{method: http.MethodDelete, path: postPath, token: alice.Token})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	items, err := sqlstore.NewInteractionRepository(db, sqlite3.Dialect).ListByPost(ctx, postID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRateLimitClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		trustedProxies []string
		want           []int
	}{
		{
			name: "forwarded header from an untrusted peer is ignored",
			want: []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests},
		},
		{
			name:           "forwarded header from a trusted proxy identifies the client",
			trustedProxies: []string{"192.0.2.0/24"},
			want:           []int{http.StatusOK, http.StatusOK, http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestHandlerWithDB(t, tt.trustedProxies, web.RateLimit{RequestsPerSecond: 1, Burst: 1})

			got := make([]int, 0, len(tt.want))

			for i := range tt.want {
				// httptest requests come from 192.0.2.1
				r := httptest.NewRequest(http.MethodGet, "/health", nil)
				r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))

				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, r)

				got = append(got, rec.Code)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}
