package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
)

// ---- fakes ----

type fakeAuth struct {
	signInResp *services.SignInResult
	signInErr  error

	redeemResp *services.SessionToken
	redeemErr  error
	gotToken   string
	gotCode    string

	checkErr error

	// sessions maps session tokens to principals.
	sessions  map[string]*services.Principal
	signedOut string

	setupResp *services.TOTPSetup
	enableErr error
}

func (f *fakeAuth) SignIn(_ context.Context, _, _ string) (*services.SignInResult, error) {
	return f.signInResp, f.signInErr
}

func (f *fakeAuth) CheckChallenge(_ context.Context, token string) error {
	if token == "" {
		return common.ErrTokenNotFound
	}
	return f.checkErr
}

func (f *fakeAuth) RedeemChallenge(_ context.Context, token, code string) (*services.SessionToken, error) {
	f.gotToken, f.gotCode = token, code
	return f.redeemResp, f.redeemErr
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*services.Principal, error) {
	if p, ok := f.sessions[token]; ok {
		return p, nil
	}
	return nil, common.ErrorUnauthorized
}

func (f *fakeAuth) SignOut(_ context.Context, sessionID string) error {
	f.signedOut = sessionID
	return nil
}

func (f *fakeAuth) BeginTOTPSetup(context.Context, string) (*services.TOTPSetup, error) {
	return f.setupResp, nil
}

func (f *fakeAuth) EnableTOTP(context.Context, string, string, string) error { return f.enableErr }
func (f *fakeAuth) DisableTOTP(context.Context, string, string) error        { return nil }

type fakePosts struct {
	posts     map[string]*models.Post
	gotAuthor string
	gotInput  services.PostInput
}

func (f *fakePosts) Create(_ context.Context, authorID string, in services.PostInput) (*models.Post, error) {
	f.gotAuthor, f.gotInput = authorID, in
	return &models.Post{ID: "p-1", AuthorID: authorID, Title: in.Title, Content: in.Content, Published: in.Published}, nil
}

func (f *fakePosts) Get(_ context.Context, id string, authenticated bool) (*models.Post, error) {
	p, ok := f.posts[id]
	if !ok || (!p.Published && !authenticated) {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (f *fakePosts) Update(_ context.Context, id string, in services.PostInput) (*models.Post, error) {
	if _, ok := f.posts[id]; !ok {
		return nil, common.ErrorNotFound
	}
	f.gotInput = in
	return &models.Post{ID: id, Title: in.Title}, nil
}

func (f *fakePosts) Delete(_ context.Context, id string) error {
	if _, ok := f.posts[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.posts, id)
	return nil
}

type fakeMedia struct {
	uploadBody    string
	uploadName    string
	uploadType    string
	uploadErr     error
	serveResp     *services.MediaContent
	serveErr      error
	gotOpts       services.ServeOptions
	gotAuthorized bool
}

func (f *fakeMedia) Upload(_ context.Context, _, filename, contentType string, body io.Reader) (*services.UploadResult, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("error storing object: %w: %w", common.ErrUploadBody, err)
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploadBody, f.uploadName, f.uploadType = string(b), filename, contentType
	return &services.UploadResult{ID: "m-1", URL: "/api/media/m-1", OriginalFilename: filename}, nil
}

func (f *fakeMedia) Serve(_ context.Context, _ string, opts services.ServeOptions, authenticated bool) (*services.MediaContent, error) {
	f.gotOpts, f.gotAuthorized = opts, authenticated
	return f.serveResp, f.serveErr
}

type fakeSweeper struct {
	res   *services.SweepResult
	err   error
	calls int
}

func (f *fakeSweeper) Sweep(context.Context, time.Time) (*services.SweepResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

// ---- helpers ----

const validSession = "session-token"

type harness struct {
	auth    *fakeAuth
	posts   *fakePosts
	media   *fakeMedia
	sweeper *fakeSweeper
	srv     *Server
	handler http.Handler
}

func newHarness(t *testing.T, mutate ...func(*Deps, *Options)) *harness {
	t.Helper()
	h := &harness{
		auth: &fakeAuth{sessions: map[string]*services.Principal{
			validSession: {UserID: "u-1", SessionID: "s-1"},
		}},
		posts:   &fakePosts{posts: map[string]*models.Post{}},
		media:   &fakeMedia{},
		sweeper: &fakeSweeper{res: &services.SweepResult{}},
	}
	deps := Deps{Auth: h.auth, Posts: h.posts, Media: h.media, Cleanup: h.sweeper}
	opts := Options{MaxUploadSize: 1 << 10}
	for _, m := range mutate {
		m(&deps, &opts)
	}
	h.srv = NewServer(":0", logging.NopLogger{}, deps, opts)
	h.handler = h.srv.Handler()
	return h
}

func (h *harness) do(method, target, body string, withSession bool, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if withSession {
		req.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: validSession})
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
