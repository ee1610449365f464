package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/planman/internal/model"
	"github.com/hitoshi/planman/internal/repository"
	"github.com/hitoshi/planman/internal/token"
)

// passwordMinLength は受け付けるパスワードの最小文字数。
const passwordMinLength = 8

// LoginResult はログイン成功時の発行結果を表す。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	codec       *token.Codec
	hasher      *Hasher
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	codec *token.Codec,
	hasher *Hasher,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		codec:       codec,
		hasher:      hasher,
	}
}

// Register は新規ユーザーを登録する。
// メールアドレスが既に使われている場合はEMAIL_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, model.NewInvalidRequestError("メールアドレスの形式が正しくありません")
	}
	if len(password) < passwordMinLength {
		return nil, model.NewInvalidRequestError(
			fmt.Sprintf("パスワードは%d文字以上にしてください", passwordMinLength))
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Role:         model.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 事前の存在確認は行わず、UNIQUE制約違反を重複検出の根拠とする
	if err := s.userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrDuplicateEmail {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return user, nil
}

// EmailAvailable は指定メールアドレスが未登録かどうかを返す。
func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return false, model.NewInvalidRequestError("メールアドレスの形式が正しくありません")
	}
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user == nil, nil
}

// Login は資格情報を検証し、トークンを発行してセッションを登録する。
//
// 処理は検証 → 発行 → 登録の順で行い、検証に失敗した場合は
// トークンの発行もセッションレジストリへの書き込みも一切発生しない。
// アカウント不存在と誤パスワードは区別せず、同一のエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		s.hasher.CompareDummy(password)
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		// 不存在時もbcrypt照合を1回行い、応答時間を一致させる
		s.hasher.CompareDummy(password)
		return nil, model.NewUnauthenticatedError()
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, model.NewUnauthenticatedError()
	}

	tokenString, expiresAt, err := s.codec.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	// セッションの有効期限はトークンの埋め込みexpと一致させる
	record := &model.SessionRecord{
		Token:     tokenString,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &LoginResult{Token: tokenString, ExpiresAt: expiresAt, User: user}, nil
}

// Logout はベアラートークンのセッションレコードを削除する。
// レコードが既に存在しない場合もエラーにしない（冪等）。
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	if tokenString == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByToken(ctx, tokenString); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// SessionAlive はベアラートークンがセッションレジストリで生きているかを返す。
// logincheckエンドポイントから参照される。
func (s *Service) SessionAlive(ctx context.Context, tokenString string) (bool, error) {
	if tokenString == "" {
		return false, nil
	}
	record, err := s.sessionRepo.FindByToken(ctx, tokenString)
	if err != nil {
		return false, fmt.Errorf("failed to find session: %w", err)
	}
	return record != nil, nil
}

// normalizeEmail はメールアドレスを検証して正規形（アドレス部のみ）を返す。
func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}
