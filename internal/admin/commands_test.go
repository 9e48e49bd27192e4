package admin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	registered string
	password   string
	verifyErr  error
	enabled    string
	enableCode string
}

func (f *fakeAccounts) Register(_ context.Context, email, password string) (*models.User, error) {
	f.registered, f.password = email, password
	return &models.User{ID: "u-1", Email: email}, nil
}

func (f *fakeAccounts) Verify(_ context.Context, email, _ string) (*models.User, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &models.User{ID: "u-1", Email: email}, nil
}

func (f *fakeAccounts) BeginTOTPSetup(context.Context, string) (*services.TOTPSetup, error) {
	return &services.TOTPSetup{Secret: "SECRET", URI: "otpauth://totp/x", QRPNG: []byte("png")}, nil
}

func (f *fakeAccounts) EnableTOTP(_ context.Context, _, secret, code string) error {
	f.enabled, f.enableCode = secret, code
	return nil
}

type fakeSweeper struct{ res *services.SweepResult }

func (f fakeSweeper) Sweep(context.Context, time.Time) (*services.SweepResult, error) {
	return f.res, nil
}

type fakeMigrator struct{ called bool }

func (f *fakeMigrator) Migrate(context.Context) error {
	f.called = true
	return nil
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	old := readPassword
	readPassword = func(int) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { readPassword = old })
}

func TestCreateUser(t *testing.T) {
	stubPassword(t, "hunter2")
	acc := &fakeAccounts{}
	var out bytes.Buffer
	a := New(acc, nil, nil, strings.NewReader("alice@example.com\n"), &out)

	require.NoError(t, a.Run(context.Background(), "create-user", nil))
	assert.Equal(t, "alice@example.com", acc.registered)
	assert.Equal(t, "hunter2", acc.password)
	assert.Contains(t, out.String(), "Created user alice@example.com (u-1)")
}

func TestTOTPSetup(t *testing.T) {
	stubPassword(t, "hunter2")
	acc := &fakeAccounts{}
	var out bytes.Buffer
	qr := filepath.Join(t.TempDir(), "qr.png")
	a := New(acc, nil, nil, strings.NewReader("alice@example.com\n123456\n"), &out)

	require.NoError(t, a.Run(context.Background(), "totp-setup", []string{"-d", "dsn", "-o", qr}))

	data, err := os.ReadFile(qr)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "SECRET", acc.enabled)
	assert.Equal(t, "123456", acc.enableCode)
}

func TestTOTPSetup_WrongPassword(t *testing.T) {
	stubPassword(t, "nope")
	acc := &fakeAccounts{verifyErr: common.ErrInvalidCredentials}
	a := New(acc, nil, nil, strings.NewReader("alice@example.com\n"), &bytes.Buffer{})

	err := a.Run(context.Background(), "totp-setup", []string{"-o", filepath.Join(t.TempDir(), "qr.png")})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.Empty(t, acc.enabled)
}

func TestSweepAndMigrate(t *testing.T) {
	failure := errors.New("media x: storage unavailable")
	m := &fakeMigrator{}
	var out bytes.Buffer
	a := New(nil, fakeSweeper{res: &services.SweepResult{Deleted: 4, Failed: 1, Err: failure}}, m, strings.NewReader(""), &out)

	assert.ErrorIs(t, a.Run(context.Background(), "sweep", nil), failure)
	assert.Contains(t, out.String(), "Deleted 4, skipped 0, failed 1")

	require.NoError(t, a.Run(context.Background(), "migrate", nil))
	assert.True(t, m.called)

	assert.ErrorIs(t, a.Run(context.Background(), "frobnicate", nil), ErrUnknownCommand)
}

func TestGetPassword_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }

	_, err := GetPassword(&bytes.Buffer{}, "Enter password")
	assert.Error(t, err)
}
