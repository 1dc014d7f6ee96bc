package todo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository/repotest"
	"github.com/hitoshi/todoman/internal/security"
)

const (
	aliceID = "11111111-1111-1111-1111-111111111111"
	bobID   = "22222222-2222-2222-2222-222222222222"
)

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T) (*Service, *repotest.TodoRepo) {
	t.Helper()
	repo := repotest.NewTodoRepo()
	svc := NewService(repo, security.NewTextSanitizer())

	// 作成順で並び順が決まるように時刻を1秒ずつ進める
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc, repo
}

func mustCreate(t *testing.T, svc *Service, userID string, in Input) *model.Todo {
	t.Helper()
	todo, err := svc.Create(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return todo
}

func assertAPIError(t *testing.T, err error, wantCode string) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != wantCode {
		t.Fatalf("code = %q, want %q", apiErr.Code, wantCode)
	}
	return apiErr
}

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newTestService(t)

	todo := mustCreate(t, svc, aliceID, Input{Name: ptr("Buy milk")})

	if todo.Priority != model.PriorityMedium {
		t.Errorf("Priority = %v, want medium", todo.Priority)
	}
	if todo.Completed {
		t.Error("Completed should default to false")
	}
	if todo.Deadline != "" {
		t.Errorf("Deadline = %q, want empty", todo.Deadline)
	}
	if todo.UserID != aliceID {
		t.Errorf("UserID = %q, want %q", todo.UserID, aliceID)
	}
	if todo.ID == "" {
		t.Error("ID should be assigned")
	}
}

func TestCreate_StripsHTMLFromName(t *testing.T) {
	svc, _ := newTestService(t)

	todo := mustCreate(t, svc, aliceID, Input{Name: ptr("<script>alert(1)</script><b>Pay</b> rent")})

	if todo.Name != "Pay rent" {
		t.Errorf("Name = %q, want %q", todo.Name, "Pay rent")
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	long := make([]rune, MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		in   Input
		want []string
	}{
		{"missing name", Input{}, []string{"Name can't be blank"}},
		{"markup only", Input{Name: ptr("<b></b>")}, []string{"Name can't be blank"}},
		{"too long", Input{Name: ptr(string(long))}, []string{"Name is too long (maximum is 255 characters)"}},
		{"unknown priority", Input{Name: ptr("x"), Priority: ptr("urgent")}, []string{"Priority is not included in the list"}},
		{"bad deadline format", Input{Name: ptr("x"), Deadline: ptr("2026/01/05")}, []string{"Deadline must be in YYYY-MM-DD format"}},
		{"impossible date", Input{Name: ptr("x"), Deadline: ptr("2026-02-30")}, []string{"Deadline is not a valid date"}},
		{"year zero", Input{Name: ptr("x"), Deadline: ptr("0000-01-01")}, []string{"Deadline is not a valid date"}},
		{"multiple", Input{Priority: ptr("urgent")}, []string{"Name can't be blank", "Priority is not included in the list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t)

			_, err := svc.Create(context.Background(), aliceID, tt.in)
			apiErr := assertAPIError(t, err, model.ErrCodeValidationFailed)

			if len(apiErr.Details) != len(tt.want) {
				t.Fatalf("details = %v, want %v", apiErr.Details, tt.want)
			}
			for i := range tt.want {
				if apiErr.Details[i] != tt.want[i] {
					t.Errorf("details[%d] = %q, want %q", i, apiErr.Details[i], tt.want[i])
				}
			}

			todos, _ := repo.ListByUser(context.Background(), aliceID, model.TodoFilter{})
			if len(todos) != 0 {
				t.Errorf("invalid todo should not be stored, got %d", len(todos))
			}
		})
	}
}

func TestCreate_MultibyteNameAtLimit(t *testing.T) {
	svc, _ := newTestService(t)

	name := make([]rune, MaxNameLength)
	for i := range name {
		name[i] = 'あ'
	}
	if _, err := svc.Create(context.Background(), aliceID, Input{Name: ptr(string(name))}); err != nil {
		t.Errorf("255 characters should be accepted, got %v", err)
	}
}

func TestList_OrderAndFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	low := mustCreate(t, svc, aliceID, Input{Name: ptr("low"), Priority: ptr("low")})
	highNoDeadline := mustCreate(t, svc, aliceID, Input{Name: ptr("high-none"), Priority: ptr("high")})
	highLate := mustCreate(t, svc, aliceID, Input{Name: ptr("high-late"), Priority: ptr("high"), Deadline: ptr("2026-03-01")})
	highEarly := mustCreate(t, svc, aliceID, Input{Name: ptr("high-early"), Priority: ptr("high"), Deadline: ptr("2026-02-01")})
	medium := mustCreate(t, svc, aliceID, Input{Name: ptr("medium")})
	mustCreate(t, svc, bobID, Input{Name: ptr("bob's")})

	todos, err := svc.List(ctx, aliceID, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{highEarly.ID, highLate.ID, highNoDeadline.ID, medium.ID, low.ID}
	if len(todos) != len(want) {
		t.Fatalf("len(todos) = %d, want %d", len(todos), len(want))
	}
	for i, id := range want {
		if todos[i].ID != id {
			t.Errorf("todos[%d] = %q, want %q", i, todos[i].Name, id)
		}
	}

	highs, err := svc.List(ctx, aliceID, "high")
	if err != nil {
		t.Fatalf("List(high) error = %v", err)
	}
	if len(highs) != 3 {
		t.Errorf("len(high todos) = %d, want 3", len(highs))
	}
}

func TestList_SameBucketNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)

	first := mustCreate(t, svc, aliceID, Input{Name: ptr("first")})
	second := mustCreate(t, svc, aliceID, Input{Name: ptr("second")})

	todos, err := svc.List(context.Background(), aliceID, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if todos[0].ID != second.ID || todos[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [second first]", todos[0].Name, todos[1].Name)
	}
}

func TestList_UnknownPriority(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), aliceID, "urgent")
	assertAPIError(t, err, model.ErrCodeValidationFailed)
}

func TestList_StoreError(t *testing.T) {
	svc, repo := newTestService(t)
	repo.ListErr = errors.New("connection reset")

	_, err := svc.List(context.Background(), aliceID, "")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not be an APIError, got %v", apiErr)
	}
}

func TestUpdate_PartialPatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, aliceID, Input{Name: ptr("Write report"), Priority: ptr("high"), Deadline: ptr("2026-04-01")})

	updated, err := svc.Update(ctx, aliceID, created.ID, Input{Completed: ptr(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.Completed {
		t.Error("Completed should be true")
	}
	if updated.Name != "Write report" || updated.Priority != model.PriorityHigh || updated.Deadline != "2026-04-01" {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", updated.UpdatedAt, created.UpdatedAt)
	}

	cleared, err := svc.Update(ctx, aliceID, created.ID, Input{Deadline: ptr("")})
	if err != nil {
		t.Fatalf("Update(clear deadline) error = %v", err)
	}
	if cleared.Deadline != "" {
		t.Errorf("Deadline = %q, want empty", cleared.Deadline)
	}
}

func TestUpdate_InvalidPatchKeepsStoredTodo(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, aliceID, Input{Name: ptr("Keep me")})

	_, err := svc.Update(ctx, aliceID, created.ID, Input{Name: ptr("")})
	assertAPIError(t, err, model.ErrCodeValidationFailed)

	stored, _ := repo.FindByIDAndUser(ctx, created.ID, aliceID)
	if stored.Name != "Keep me" {
		t.Errorf("stored name = %q, want %q", stored.Name, "Keep me")
	}
}

func TestUpdateAndDelete_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	bobs := mustCreate(t, svc, bobID, Input{Name: ptr("private")})

	ids := map[string]string{
		"other user's todo": bobs.ID,
		"unknown id":        "33333333-3333-3333-3333-333333333333",
		"malformed id":      "not-a-uuid",
	}
	for name, id := range ids {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Update(ctx, aliceID, id, Input{Name: ptr("hijack")})
			assertAPIError(t, err, model.ErrCodeTodoNotFound)

			err = svc.Delete(ctx, aliceID, id)
			assertAPIError(t, err, model.ErrCodeTodoNotFound)
		})
	}

	todos, _ := svc.List(ctx, bobID, "")
	if len(todos) != 1 || todos[0].Name != "private" {
		t.Errorf("bob's todo should be untouched, got %+v", todos)
	}
}

func TestDelete_RemovesTodo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, aliceID, Input{Name: ptr("done")})

	if err := svc.Delete(ctx, aliceID, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	err := svc.Delete(ctx, aliceID, created.ID)
	assertAPIError(t, err, model.ErrCodeTodoNotFound)
}
