package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// ProviderGoogle はGoogleを表すプロバイダー名。
const ProviderGoogle = "google"

// ExternalIdentity はIdPが認証後に主張するユーザー情報。
type ExternalIdentity struct {
	Provider       string `validate:"required"`
	ProviderUserID string `validate:"required"`
	Email          string `validate:"required,email"`
	Name           string `validate:"required"`
}

// normalize は各フィールドの前後の空白を除去したコピーを返す。
func (i ExternalIdentity) normalize() ExternalIdentity {
	return ExternalIdentity{
		Provider:       strings.TrimSpace(i.Provider),
		ProviderUserID: strings.TrimSpace(i.ProviderUserID),
		Email:          strings.TrimSpace(i.Email),
		Name:           strings.TrimSpace(i.Name),
	}
}

// Linker はIdPの主張をローカルユーザーに対応付ける。
// 既存ユーザーはメールアドレスと表示名を最新の主張で更新し、
// 未登録の場合は新規作成する。
type Linker struct {
	users    repository.UserRepository
	validate *validator.Validate
	now      func() time.Time
}

// NewLinker はLinkerを生成する。
func NewLinker(users repository.UserRepository) *Linker {
	return &Linker{
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Link は主張に対応するユーザーを返す。
// 主張が不正な場合や保存に失敗した場合は*LinkErrorを返し、部分的なユーザーは返さない。
// 同じsubjectの初回ログインが同時に行われた場合、一意制約に負けた側は失敗になる。
func (l *Linker) Link(ctx context.Context, assertion ExternalIdentity) (*model.User, error) {
	ident := assertion.normalize()
	if ident.Provider != ProviderGoogle {
		return nil, &LinkError{Reason: "unsupported provider " + ident.Provider}
	}
	if err := l.validate.Struct(ident); err != nil {
		return nil, &LinkError{Reason: "invalid identity assertion", Err: err}
	}

	user, err := l.users.FindByGoogleID(ctx, ident.ProviderUserID)
	if err != nil {
		return nil, &LinkError{Reason: "lookup failed", Err: err}
	}

	now := l.now()
	if user != nil {
		if user.Email == ident.Email && user.Name == ident.Name {
			return user, nil
		}
		user.Email = ident.Email
		user.Name = ident.Name
		user.UpdatedAt = now
		if err := l.users.UpdateProfile(ctx, user); err != nil {
			return nil, &LinkError{Reason: "profile update failed", Err: err}
		}
		slog.Info("user profile updated", slog.String("user_id", user.ID))
		return user, nil
	}

	user = &model.User{
		ID:        uuid.NewString(),
		GoogleID:  ident.ProviderUserID,
		Email:     ident.Email,
		Name:      ident.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.users.Create(ctx, user); err != nil {
		return nil, &LinkError{Reason: "user creation failed", Err: err}
	}
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", ident.Provider),
	)
	return user, nil
}
