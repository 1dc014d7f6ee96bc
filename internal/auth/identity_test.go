package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/repository/repotest"
)

func googleIdentity(sub, email, name string) ExternalIdentity {
	return ExternalIdentity{Provider: ProviderGoogle, ProviderUserID: sub, Email: email, Name: name}
}

func TestLinker_Link_CreatesNewUser(t *testing.T) {
	users := repotest.NewUserRepo()
	linker := NewLinker(users)

	user, err := linker.Link(context.Background(), googleIdentity("sub-1", "alice@example.com", "Alice"))
	if err != nil {
		t.Fatalf("Link returned error: %v", err)
	}
	if user.ID == "" {
		t.Error("expected persisted user to have an ID")
	}
	if user.GoogleID != "sub-1" || user.Email != "alice@example.com" || user.Name != "Alice" {
		t.Errorf("user = %+v", user)
	}
	if users.Count() != 1 {
		t.Errorf("user count = %d, want 1", users.Count())
	}
}

// 同じsubjectで再ログインした場合は同じユーザーを返し、プロフィールを更新することを検証する。
func TestLinker_Link_ExistingUserUpdatesProfile(t *testing.T) {
	users := repotest.NewUserRepo()
	linker := NewLinker(users)
	ctx := context.Background()

	first, err := linker.Link(ctx, googleIdentity("sub-1", "old@example.com", "Old Name"))
	if err != nil {
		t.Fatalf("first Link returned error: %v", err)
	}
	second, err := linker.Link(ctx, googleIdentity("sub-1", "new@example.com", "New Name"))
	if err != nil {
		t.Fatalf("second Link returned error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second.ID = %q, want %q", second.ID, first.ID)
	}
	stored, _ := users.FindByID(ctx, first.ID)
	if stored.Email != "new@example.com" || stored.Name != "New Name" {
		t.Errorf("stored profile = (%q, %q), want (%q, %q)", stored.Email, stored.Name, "new@example.com", "New Name")
	}
	if users.Count() != 1 {
		t.Errorf("user count = %d, want 1", users.Count())
	}
}

func TestLinker_Link_InvalidAssertion(t *testing.T) {
	tests := []struct {
		name  string
		ident ExternalIdentity
	}{
		{"subjectなし", googleIdentity("", "a@example.com", "A")},
		{"空白のみのsubject", googleIdentity("   ", "a@example.com", "A")},
		{"emailなし", googleIdentity("sub", "", "A")},
		{"不正なemail", googleIdentity("sub", "not-an-email", "A")},
		{"nameなし", googleIdentity("sub", "a@example.com", "")},
		{"未対応のprovider", ExternalIdentity{Provider: "github", ProviderUserID: "sub", Email: "a@example.com", Name: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := repotest.NewUserRepo()
			user, err := NewLinker(users).Link(context.Background(), tt.ident)
			if user != nil {
				t.Errorf("user = %+v, want nil", user)
			}
			if !errors.Is(err, ErrUserCreationFailed) {
				t.Errorf("err = %v, want ErrUserCreationFailed", err)
			}
			if users.Count() != 0 {
				t.Errorf("user count = %d, want 0", users.Count())
			}
		})
	}
}

// 別subjectが同じemailを主張した場合は一意制約により失敗することを検証する。
func TestLinker_Link_EmailConflict(t *testing.T) {
	users := repotest.NewUserRepo()
	linker := NewLinker(users)
	ctx := context.Background()

	if _, err := linker.Link(ctx, googleIdentity("sub-1", "shared@example.com", "One")); err != nil {
		t.Fatalf("first Link returned error: %v", err)
	}

	user, err := linker.Link(ctx, googleIdentity("sub-2", "shared@example.com", "Two"))
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
	var linkErr *LinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("err = %v, want *LinkError", err)
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("err should wrap ErrDuplicate: %v", err)
	}
}

func TestLinker_Link_StoreFailures(t *testing.T) {
	storeErr := fmt.Errorf("connection reset")

	t.Run("検索失敗", func(t *testing.T) {
		users := repotest.NewUserRepo()
		users.FindErr = storeErr
		_, err := NewLinker(users).Link(context.Background(), googleIdentity("sub", "a@example.com", "A"))
		if !errors.Is(err, ErrUserCreationFailed) {
			t.Errorf("err = %v, want ErrUserCreationFailed", err)
		}
	})

	t.Run("作成失敗", func(t *testing.T) {
		users := repotest.NewUserRepo()
		users.CreateErr = storeErr
		_, err := NewLinker(users).Link(context.Background(), googleIdentity("sub", "a@example.com", "A"))
		if !errors.Is(err, ErrUserCreationFailed) {
			t.Errorf("err = %v, want ErrUserCreationFailed", err)
		}
	})

	t.Run("更新失敗", func(t *testing.T) {
		users := repotest.NewUserRepo()
		users.Put(&model.User{ID: "u-1", GoogleID: "sub", Email: "old@example.com", Name: "A"})
		users.UpdateErr = storeErr
		user, err := NewLinker(users).Link(context.Background(), googleIdentity("sub", "new@example.com", "A"))
		if user != nil {
			t.Errorf("user = %+v, want nil", user)
		}
		if !errors.Is(err, ErrUserCreationFailed) {
			t.Errorf("err = %v, want ErrUserCreationFailed", err)
		}
	})
}
