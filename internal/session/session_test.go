package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/model"
)

// --- モック定義 ---

type mockTokenChecker struct {
	hasTokenFn func(ctx context.Context, userID string) (bool, error)
}

func (m *mockTokenChecker) HasToken(ctx context.Context, userID string) (bool, error) {
	if m.hasTokenFn != nil {
		return m.hasTokenFn(ctx, userID)
	}
	return false, nil
}

var _ TokenChecker = (*mockTokenChecker)(nil)

var testSecret = []byte("test-session-secret")

func newTestManager(t *testing.T, tokens TokenChecker) *Manager {
	t.Helper()
	store := kvstore.NewMemoryStore(time.Hour)
	t.Cleanup(store.Stop)
	if tokens == nil {
		tokens = &mockTokenChecker{}
	}
	return NewManager(store, tokens, testSecret, nil)
}

func testProfile() model.UserProfile {
	return model.UserProfile{
		ID:       "user1",
		Username: "taro",
		Email:    "taro@example.com",
	}
}

// --- テスト ---

func TestIssueAndVerifySessionToken(t *testing.T) {
	m := newTestManager(t, nil)

	token, err := m.IssueSessionToken("user1", testProfile())
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}

	claims, err := m.VerifySessionToken(token)
	if err != nil {
		t.Fatalf("VerifySessionToken() error = %v", err)
	}
	if claims.UserID != "user1" {
		t.Errorf("claims.UserID = %q, want %q", claims.UserID, "user1")
	}
	if claims.User.Username != "taro" {
		t.Errorf("claims.User.Username = %q, want %q", claims.User.Username, "taro")
	}
	if claims.Issuer != "TaskFlow" {
		t.Errorf("claims.Issuer = %q, want TaskFlow", claims.Issuer)
	}
}

func TestVerifySessionToken_RejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, nil)
	other := newTestManager(t, nil)
	other.secret = []byte("different-secret")

	token, _ := other.IssueSessionToken("user1", testProfile())

	_, err := m.VerifySessionToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifySessionToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifySessionToken_RejectsExpired(t *testing.T) {
	m := newTestManager(t, nil)

	// 25時間前に発行されたトークン
	m.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	token, _ := m.IssueSessionToken("user1", testProfile())
	m.now = time.Now

	_, err := m.VerifySessionToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifySessionToken() for expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifySessionToken_RejectsMalformed(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.VerifySessionToken("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifySessionToken() for malformed token error = %v, want ErrInvalidToken", err)
	}
}

func TestStoreAndGetSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	created, err := m.StoreSession(ctx, "user1", testProfile())
	if err != nil {
		t.Fatalf("StoreSession() error = %v", err)
	}

	got, err := m.GetSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSession() = nil, want session")
	}
	if got.UserID != "user1" || got.User.Email != "taro@example.com" {
		t.Errorf("GetSession() = %+v, want stored session", got)
	}
	if !got.ExpiresAt.Equal(created.ExpiresAt) {
		t.Errorf("GetSession().ExpiresAt = %v, want %v", got.ExpiresAt, created.ExpiresAt)
	}
}

func TestGetSession_ExpiredIsNeverReadable(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	if _, err := m.StoreSession(ctx, "user1", testProfile()); err != nil {
		t.Fatalf("StoreSession() error = %v", err)
	}

	// ExpiresAtちょうどの時点で読み出し不能になる
	m.now = func() time.Time { return time.Now().Add(sessionTTL + time.Second) }

	got, err := m.GetSession(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetSession() after expiry = %+v, want nil", got)
	}
}

func TestRemoveSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	m.StoreSession(ctx, "user1", testProfile())

	if err := m.RemoveSession(ctx, "user1"); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}

	got, _ := m.GetSession(ctx, "user1")
	if got != nil {
		t.Error("GetSession() after remove != nil, want nil")
	}
}

func TestIsAuthenticated_RequiresBothSessionAndToken(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		hasSession bool
		hasToken   bool
		want       bool
	}{
		{"session and token", true, true, true},
		{"session only", true, false, false},
		{"token only", false, true, false},
		{"neither", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &mockTokenChecker{
				hasTokenFn: func(ctx context.Context, userID string) (bool, error) {
					return tt.hasToken, nil
				},
			}
			m := newTestManager(t, tokens)

			if tt.hasSession {
				if _, err := m.StoreSession(ctx, "user1", testProfile()); err != nil {
					t.Fatalf("StoreSession() error = %v", err)
				}
			}

			got, err := m.IsAuthenticated(ctx, "user1")
			if err != nil {
				t.Fatalf("IsAuthenticated() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAuthenticated_FlipsWhenEitherSideRemoved(t *testing.T) {
	ctx := context.Background()

	tokenPresent := true
	tokens := &mockTokenChecker{
		hasTokenFn: func(ctx context.Context, userID string) (bool, error) {
			return tokenPresent, nil
		},
	}
	m := newTestManager(t, tokens)
	m.StoreSession(ctx, "user1", testProfile())

	if ok, _ := m.IsAuthenticated(ctx, "user1"); !ok {
		t.Fatal("IsAuthenticated() = false, want true")
	}

	// トークンの取り消しで認証済みではなくなる
	tokenPresent = false
	if ok, _ := m.IsAuthenticated(ctx, "user1"); ok {
		t.Error("IsAuthenticated() after token removal = true, want false")
	}

	// セッション削除でも同様
	tokenPresent = true
	m.RemoveSession(ctx, "user1")
	if ok, _ := m.IsAuthenticated(ctx, "user1"); ok {
		t.Error("IsAuthenticated() after session removal = true, want false")
	}
}
