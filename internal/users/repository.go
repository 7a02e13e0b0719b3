package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUserNotFound は指定したユーザーが存在しない場合に返される。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrEmailTaken はメールアドレスが既に使われている場合に返される。
	ErrEmailTaken = errors.New("メールアドレスは既に登録されています")
)

// User はusers-serviceが管理するユーザー。
type User struct {
	ID        int64
	Email     string
	FullName  string
	IsStaff   bool
	IsActive  bool
	CreatedAt time.Time
}

// Repository はusersテーブルへのアクセスを提供する。
type Repository struct {
	db *sql.DB
}

// NewRepository は新しいRepositoryを生成する。
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByID はIDでユーザーを取得する。
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, full_name, is_staff, is_active, created_at
FROM users
WHERE id = ?`, id)
	return scanUser(row)
}

// GetByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, full_name, is_staff, is_active, created_at
FROM users
WHERE email = ? COLLATE NOCASE`, email)
	return scanUser(row)
}

// Create はユーザーを登録し、採番されたIDと作成日時をuserに設定する。
func (r *Repository) Create(ctx context.Context, user *User) error {
	if strings.TrimSpace(user.Email) == "" {
		return errors.New("メールアドレスが空です")
	}
	user.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (email, full_name, is_staff, is_active, created_at)
VALUES (?, ?, ?, ?, ?)`,
		user.Email,
		user.FullName,
		user.IsStaff,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
		}
		return fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("採番されたIDの取得に失敗: %w", err)
	}
	user.ID = id
	return nil
}

// EnsureStaff はemailのユーザーが存在しなければスタッフとして作成する。
// 作成した場合はtrueを返す。
func (r *Repository) EnsureStaff(ctx context.Context, email string) (*User, bool, error) {
	user, err := r.GetByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user = &User{Email: email, IsStaff: true, IsActive: true}
	if err := r.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// scanUser は1行をUserに変換する。
func scanUser(row interface {
	Scan(dest ...any) error
}) (*User, error) {
	var user User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.IsStaff,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザーの読み込みに失敗: %w", err)
	}
	return &user, nil
}
