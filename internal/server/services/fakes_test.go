package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/media"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/posts"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/users"
)

// memDB is an in-memory stand-in for the four tables. Its methods follow
// the conditional semantics of the SQL statements they replace.
type memDB struct {
	mu       sync.Mutex
	users    map[string]*models.User
	sessions map[string]*models.Session
	posts    map[string]*models.Post
	media    map[string]*models.Media
	seq      int

	// failures injected by tests
	consumeErr   error
	candidateErr error
	lockGone     map[string]bool
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
		posts:    map[string]*models.Post{},
		media:    map[string]*models.Media{},
		lockGone: map[string]bool{},
	}
}

func (m *memDB) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memDB) Users(dbx.DBTX) users.Repository              { return (*memUsers)(m) }
func (m *memDB) Sessions(dbx.DBTX) sessions.Repository        { return (*memSessions)(m) }
func (m *memDB) Posts(dbx.DBTX) posts.Repository              { return (*memPosts)(m) }
func (m *memDB) Media(dbx.DBTX) media.Repository              { return (*memMedia)(m) }

func (m *memDB) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// --- users ---

type memUsers memDB

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, fmt.Errorf("db error: duplicate email")
		}
	}
	u.ID = (*memDB)(r).nextID("u")
	c := *u
	r.users[u.ID] = &c
	return u, nil
}

func (r *memUsers) find(pred func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if pred(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *memUsers) SetTempToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.TempToken, u.TempTokenExpiresAt = &token, &expiresAt
	return nil
}

func (r *memUsers) FindByTempToken(_ context.Context, token string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.TempToken != nil && *u.TempToken == token })
}

func (r *memUsers) ConsumeTempToken(_ context.Context, userID, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumeErr != nil {
		return false, r.consumeErr
	}
	u, ok := r.users[userID]
	if !ok || u.TempToken == nil || *u.TempToken != token || u.TempTokenExpiresAt.Before(now) {
		return false, nil
	}
	u.TempToken, u.TempTokenExpiresAt = nil, nil
	return true, nil
}

func (r *memUsers) SetTOTPSecret(_ context.Context, userID string, secret *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.TOTPSecret = secret
	return nil
}

// --- sessions ---

type memSessions memDB

func (r *memSessions) Create(_ context.Context, id, userID string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &models.Session{ID: id, UserID: userID, Expires: expires}
	return nil
}

func (r *memSessions) Find(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s
	return &c, nil
}

func (r *memSessions) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !s.Expires.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- posts ---

type memPosts memDB

func (r *memPosts) Create(_ context.Context, p *models.Post) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	c.ID = (*memDB)(r).nextID("p")
	r.posts[c.ID] = &c
	out := c
	return &out, nil
}

func (r *memPosts) Get(_ context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPosts) GetForUpdate(ctx context.Context, id string) (*models.Post, error) {
	return r.Get(ctx, id)
}

func (r *memPosts) Update(_ context.Context, p *models.Post) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[p.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	r.posts[p.ID] = &c
	out := c
	return &out, nil
}

func (r *memPosts) Delete(_ context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.posts, id)
	return p, nil
}

// --- media ---

type memMedia memDB

func (r *memMedia) Create(_ context.Context, m *models.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.media {
		if existing.BlobURL == m.BlobURL {
			return fmt.Errorf("db error: duplicate blob_url")
		}
	}
	c := *m
	r.media[m.ID] = &c
	return nil
}

func (r *memMedia) GetByID(_ context.Context, id string) (*models.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.media[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *m
	return &c, nil
}

func matchesURL(m *models.Media, urls []string) bool {
	return slices.Contains(urls, m.BlobURL) || (m.MediumURL != nil && slices.Contains(urls, *m.MediumURL))
}

func (r *memMedia) embeddedElsewhere(m *models.Media, postID string, publishedOnly bool) bool {
	for _, p := range r.posts {
		if p.ID == postID || (publishedOnly && !p.Published) {
			continue
		}
		if strings.Contains(p.Content, m.BlobURL) || (m.MediumURL != nil && strings.Contains(p.Content, *m.MediumURL)) {
			return true
		}
	}
	return false
}

func (r *memMedia) MarkReferenced(_ context.Context, postID string, urls []string, published bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.media {
		if !matchesURL(m, urls) {
			continue
		}
		if m.Status != models.MediaReferenced && !m.Status.CanTransitionTo(models.MediaReferenced) {
			continue
		}
		m.Status = models.MediaReferenced
		m.ScheduledDeleteAt = nil
		m.IsPublic = published || (*memMedia)(r).embeddedElsewhere(m, postID, true)
		n++
	}
	return n, nil
}

func (r *memMedia) MarkUnreferenced(_ context.Context, postID string, urls []string, deleteAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.media {
		if !m.Status.CanTransitionTo(models.MediaPendingDeletion) || !matchesURL(m, urls) || (*memMedia)(r).embeddedElsewhere(m, postID, false) {
			continue
		}
		at := deleteAt
		m.Status = models.MediaPendingDeletion
		m.ScheduledDeleteAt = &at
		m.IsPublic = false
		n++
	}
	return n, nil
}

func candidate(m *models.Media, now, cutoff time.Time) bool {
	if !m.Status.Purgeable() {
		return false
	}
	switch m.Status {
	case models.MediaUploaded:
		return m.CreatedAt.Before(cutoff)
	case models.MediaPendingDeletion:
		return m.ScheduledDeleteAt != nil && !m.ScheduledDeleteAt.After(now)
	}
	return false
}

func (r *memMedia) SweepCandidates(_ context.Context, now, cutoff time.Time, limit int) ([]*models.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.candidateErr != nil {
		return nil, r.candidateErr
	}
	var out []*models.Media
	for _, m := range r.media {
		if candidate(m, now, cutoff) {
			c := *m
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Media) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMedia) LockCandidate(_ context.Context, id string, now, cutoff time.Time) (*models.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.media[id]
	if !ok || r.lockGone[id] || !candidate(m, now, cutoff) {
		return nil, common.ErrorNotFound
	}
	c := *m
	return &c, nil
}

func (r *memMedia) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.media, id)
	return nil
}

// --- object store ---

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	putErr    error
	getErr    error
	deleteErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

func (s *memStore) Put(_ context.Context, key, _ string, body io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return bytes.Clone(b), nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

// --- sql mock ---

// newTxDB returns a mock database that accepts up to maxTx transactions,
// committed or rolled back, in any order. Repositories are fakes, so only
// transaction boundaries reach it.
const maxTx = 64

func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < maxTx; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}
