package auth

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/planman/internal/model"
	"github.com/hitoshi/planman/internal/repository"
	"github.com/hitoshi/planman/internal/token"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, record *model.SessionRecord) error
	findByTokenFn    func(ctx context.Context, tokenString string) (*model.SessionRecord, error)
	deleteByTokenFn  func(ctx context.Context, tokenString string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, record *model.SessionRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, record)
	}
	return nil
}

func (m *mockSessionRepo) FindByToken(ctx context.Context, tokenString string) (*model.SessionRecord, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, tokenString)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByToken(ctx context.Context, tokenString string) error {
	if m.deleteByTokenFn != nil {
		return m.deleteByTokenFn(ctx, tokenString)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

// --- テストヘルパー ---

func newTestService(t *testing.T, userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	t.Helper()
	codec := token.NewCodec([]byte("test-signing-key-0123456789abcdef"), time.Hour)
	// テストではbcryptの最小コストを使い実行時間を抑える
	hasher, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher() error = %v", err)
	}
	return NewService(userRepo, sessionRepo, codec, hasher)
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test password: %v", err)
	}
	return string(hashed)
}

// --- テスト ---

func TestRegister_CreatesUserWithHashedPassword(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}

	svc := newTestService(t, userRepo, &mockSessionRepo{})

	user, err := svc.Register(ctx, "new@example.com", "secret-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user == nil || user.ID == "" {
		t.Fatal("expected registered user with ID")
	}
	if user.Role != model.RoleMember {
		t.Errorf("user role = %q, want %q", user.Role, model.RoleMember)
	}
	if createdUser == nil {
		t.Fatal("expected user to be persisted")
	}
	// 平文パスワードは保存されない
	if createdUser.PasswordHash == "secret-password" {
		t.Error("password must not be stored in plain text")
	}
	if bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("secret-password")) != nil {
		t.Error("stored hash does not match original password")
	}
}

func TestRegister_DuplicateEmail_ReturnsEmailTaken(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateEmail
		},
	}

	svc := newTestService(t, userRepo, &mockSessionRepo{})

	_, err := svc.Register(ctx, "taken@example.com", "secret-password")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeEmailTaken {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeEmailTaken)
	}
}

func TestRegister_InvalidInput_ReturnsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{})

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"不正なメールアドレス", "not-an-email", "secret-password"},
		{"空のメールアドレス", "", "secret-password"},
		{"短すぎるパスワード", "ok@example.com", "short"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.email, tc.password)
			apiErr, ok := err.(*model.APIError)
			if !ok {
				t.Fatalf("expected APIError, got %T: %v", err, err)
			}
			if apiErr.Code != model.ErrCodeInvalidRequest {
				t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidRequest)
			}
		})
	}
}

func TestLogin_Success_IssuesTokenAndCreatesSession(t *testing.T) {
	ctx := context.Background()

	userID := "user-id-1"
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           userID,
				Email:        email,
				PasswordHash: hashForTest(t, "correct-password"),
				Role:         model.RoleMember,
			}, nil
		},
	}

	var createdRecord *model.SessionRecord
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, record *model.SessionRecord) error {
			createdRecord = record
			return nil
		},
	}

	svc := newTestService(t, userRepo, sessionRepo)

	result, err := svc.Login(ctx, "user@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.Token == "" {
		t.Fatal("expected non-empty token")
	}
	// 発行されたトークンはコーデックで検証できる
	identity, err := svc.codec.Verify(result.Token)
	if err != nil {
		t.Fatalf("issued token failed verification: %v", err)
	}
	if identity.UserID != userID {
		t.Errorf("identity.UserID = %q, want %q", identity.UserID, userID)
	}

	// セッションレコードの期限はトークンのexpと一致する
	if createdRecord == nil {
		t.Fatal("expected session record to be created")
	}
	if createdRecord.Token != result.Token {
		t.Error("session record keyed by a different token")
	}
	if !createdRecord.ExpiresAt.Equal(result.ExpiresAt) {
		t.Errorf("session expiry = %v, token expiry = %v", createdRecord.ExpiresAt, result.ExpiresAt)
	}
}

func TestLogin_UnknownEmailAndWrongPassword_AreIndistinguishable(t *testing.T) {
	ctx := context.Background()

	sessionCreated := false
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, record *model.SessionRecord) error {
			sessionCreated = true
			return nil
		},
	}

	// アカウント不存在
	unknownRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(t, unknownRepo, sessionRepo)
	_, errUnknown := svc.Login(ctx, "nobody@example.com", "whatever")

	// 誤パスワード
	wrongPassRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           "user-id-2",
				Email:        email,
				PasswordHash: hashForTest(t, "correct-password"),
				Role:         model.RoleMember,
			}, nil
		},
	}
	svc = newTestService(t, wrongPassRepo, sessionRepo)
	_, errWrongPass := svc.Login(ctx, "user@example.com", "wrong-password")

	// 両者は同一のエラーコード・メッセージで区別できない
	apiUnknown, ok := errUnknown.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError for unknown email, got %T", errUnknown)
	}
	apiWrong, ok := errWrongPass.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError for wrong password, got %T", errWrongPass)
	}
	if apiUnknown.Code != model.ErrCodeUnauthenticated || apiWrong.Code != model.ErrCodeUnauthenticated {
		t.Errorf("codes = %q / %q, want both %q", apiUnknown.Code, apiWrong.Code, model.ErrCodeUnauthenticated)
	}
	if apiUnknown.Message != apiWrong.Message {
		t.Errorf("messages differ: %q vs %q", apiUnknown.Message, apiWrong.Message)
	}

	// 失敗時にセッションレジストリへの書き込みは発生しない
	if sessionCreated {
		t.Error("session must not be created on failed login")
	}
}

func TestLogout_DeletesSessionByToken(t *testing.T) {
	ctx := context.Background()

	var deletedToken string
	sessionRepo := &mockSessionRepo{
		deleteByTokenFn: func(ctx context.Context, tokenString string) error {
			deletedToken = tokenString
			return nil
		},
	}

	svc := newTestService(t, &mockUserRepo{}, sessionRepo)

	if err := svc.Logout(ctx, "bearer-token-abc"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedToken != "bearer-token-abc" {
		t.Errorf("deleted token = %q, want %q", deletedToken, "bearer-token-abc")
	}
}

func TestLogout_EmptyToken_IsNoOp(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		deleteByTokenFn: func(ctx context.Context, tokenString string) error {
			t.Error("delete must not be called for empty token")
			return nil
		},
	}

	svc := newTestService(t, &mockUserRepo{}, sessionRepo)

	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
}

func TestSessionAlive(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		findByTokenFn: func(ctx context.Context, tokenString string) (*model.SessionRecord, error) {
			if tokenString == "live-token" {
				return &model.SessionRecord{
					Token:     tokenString,
					UserID:    "user-1",
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			}
			return nil, nil
		},
	}

	svc := newTestService(t, &mockUserRepo{}, sessionRepo)

	alive, err := svc.SessionAlive(ctx, "live-token")
	if err != nil {
		t.Fatalf("SessionAlive() error = %v", err)
	}
	if !alive {
		t.Error("expected live session")
	}

	alive, err = svc.SessionAlive(ctx, "dead-token")
	if err != nil {
		t.Fatalf("SessionAlive() error = %v", err)
	}
	if alive {
		t.Error("expected dead session")
	}

	alive, err = svc.SessionAlive(ctx, "")
	if err != nil {
		t.Fatalf("SessionAlive() error = %v", err)
	}
	if alive {
		t.Error("expected false for empty token")
	}
}

func TestEmailAvailable(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email == "taken@example.com" {
				return &model.User{ID: "user-1", Email: email}, nil
			}
			return nil, nil
		},
	}

	svc := newTestService(t, userRepo, &mockSessionRepo{})

	available, err := svc.EmailAvailable(ctx, "free@example.com")
	if err != nil {
		t.Fatalf("EmailAvailable() error = %v", err)
	}
	if !available {
		t.Error("expected available email")
	}

	available, err = svc.EmailAvailable(ctx, "taken@example.com")
	if err != nil {
		t.Fatalf("EmailAvailable() error = %v", err)
	}
	if available {
		t.Error("expected taken email")
	}
}
