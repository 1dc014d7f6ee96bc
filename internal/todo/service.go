// Package todo はTodo管理のドメインロジックを提供する。
package todo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// MaxNameLength はTodo名の最大文字数。
const MaxNameLength = 255

// deadlineLayout は期限の日付形式。
const deadlineLayout = "2006-01-02"

var deadlinePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Input はTodoの作成・更新リクエストの内容。
// nilのフィールドは未指定として扱い、更新時は既存の値を維持する。
type Input struct {
	Name      *string
	Priority  *string
	Deadline  *string
	Completed *bool
}

// Sanitizer はユーザー入力からHTMLを除去する。
type Sanitizer interface {
	Sanitize(input string) string
}

// todoFields は検証対象となる入力値。
type todoFields struct {
	Name     string `validate:"required,max=255"`
	Priority string `validate:"required,oneof=high medium low"`
	Deadline string `validate:"omitempty,datetime=2006-01-02,storable_date"`
}

// Service はTodo管理のサービス層。
// すべての操作は所有者のユーザーIDで絞り込まれ、他ユーザーのTodoは存在しないものとして扱う。
type Service struct {
	repo      repository.TodoRepository
	sanitizer Sanitizer
	validate  *validator.Validate
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TodoRepository, sanitizer Sanitizer) *Service {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// PostgreSQLのDATEは西暦0年を受け付けない
	_ = validate.RegisterValidation("storable_date", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(deadlineLayout, fl.Field().String())
		return err == nil && d.Year() >= 1
	})

	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		validate:  validate,
		now:       time.Now,
	}
}

// List はユーザーのTodoを表示順で返す。
// priorityが空でない場合はその優先度で絞り込み、未知の値はバリデーションエラーとする。
func (s *Service) List(ctx context.Context, userID, priority string) ([]*model.Todo, error) {
	var filter model.TodoFilter
	if priority != "" {
		p, ok := model.ParsePriority(priority)
		if !ok {
			return nil, model.NewValidationError([]string{"Priority is not included in the list"})
		}
		filter.Priority = &p
	}

	todos, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("Todo一覧の取得に失敗しました: %w", err)
	}
	return todos, nil
}

// Create はTodoを作成する。優先度の既定値はmedium、完了フラグの既定値はfalse。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Todo, error) {
	fields := todoFields{Priority: model.DefaultPriority.String()}
	completed := false
	s.merge(&fields, &completed, in)

	priority, err := s.check(fields)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	todo := &model.Todo{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      fields.Name,
		Priority:  priority,
		Deadline:  fields.Deadline,
		Completed: completed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("Todoの作成に失敗しました: %w", err)
	}
	return todo, nil
}

// Update は指定されたフィールドのみを既存のTodoに適用する。
// 存在しない、他ユーザーの、またはIDの形式が不正なTodoはTODO_NOT_FOUNDとなる。
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*model.Todo, error) {
	existing, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	fields := todoFields{
		Name:     existing.Name,
		Priority: existing.Priority.String(),
		Deadline: existing.Deadline,
	}
	completed := existing.Completed
	s.merge(&fields, &completed, in)

	priority, err := s.check(fields)
	if err != nil {
		return nil, err
	}

	existing.Name = fields.Name
	existing.Priority = priority
	existing.Deadline = fields.Deadline
	existing.Completed = completed
	existing.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("Todoの更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewTodoNotFoundError()
	}
	return existing, nil
}

// Delete は指定ユーザーが所有するTodoを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewTodoNotFoundError()
	}

	deleted, err := s.repo.DeleteByIDAndUser(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("Todoの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewTodoNotFoundError()
	}
	return nil
}

// find はユーザーが所有するTodoを取得する。
func (s *Service) find(ctx context.Context, userID, id string) (*model.Todo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewTodoNotFoundError()
	}

	todo, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("Todoの取得に失敗しました: %w", err)
	}
	if todo == nil {
		return nil, model.NewTodoNotFoundError()
	}
	return todo, nil
}

// merge は入力で指定された値をfieldsに上書きする。名前はHTMLを除去してから適用する。
func (s *Service) merge(fields *todoFields, completed *bool, in Input) {
	if in.Name != nil {
		fields.Name = s.sanitizer.Sanitize(*in.Name)
	}
	if in.Priority != nil {
		fields.Priority = *in.Priority
	}
	if in.Deadline != nil {
		fields.Deadline = *in.Deadline
	}
	if in.Completed != nil {
		*completed = *in.Completed
	}
}

// check は入力値を検証し、優先度を変換して返す。
func (s *Service) check(fields todoFields) (model.Priority, error) {
	if err := s.validate.Struct(fields); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return 0, fmt.Errorf("Todoの検証に失敗しました: %w", err)
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, validationMessage(fe, fields))
		}
		return 0, model.NewValidationError(details)
	}

	priority, _ := model.ParsePriority(fields.Priority)
	return priority, nil
}

// validationMessage は検証エラーを利用者向けのメッセージに変換する。
func validationMessage(fe validator.FieldError, fields todoFields) string {
	switch fe.Field() {
	case "Name":
		if fe.Tag() == "max" {
			return fmt.Sprintf("Name is too long (maximum is %d characters)", MaxNameLength)
		}
		return "Name can't be blank"
	case "Priority":
		if fe.Tag() == "required" {
			return "Priority can't be blank"
		}
		return "Priority is not included in the list"
	case "Deadline":
		if !deadlinePattern.MatchString(fields.Deadline) {
			return "Deadline must be in YYYY-MM-DD format"
		}
		return "Deadline is not a valid date"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
