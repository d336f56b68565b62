package store

import "context"

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	IsAdmin      bool   `db:"is_admin"`
	CreatedAt    any    `db:"created_at"`
}

func (s *UserStore) Create(ctx context.Context, tx Execer, id, username, email, passwordHash string) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, FALSE)
	`
	_, err := tx.ExecContext(ctx, query, id, username, email, passwordHash)
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (map[string]any, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, password_hash, is_admin, created_at
		FROM users WHERE email = $1
	`, email)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":            row.ID,
		"username":      row.Username,
		"email":         row.Email,
		"password_hash": row.PasswordHash,
		"is_admin":      row.IsAdmin,
		"created_at":    row.CreatedAt,
	}, nil
}

// Exists reports whether a user owns the given email. The escrow state
// machine uses it to validate buyer/seller references before funding.
func (s *UserStore) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)
	`, email)
	return exists, err
}

func (s *UserStore) PromoteAdmin(ctx context.Context, tx Execer, email string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET is_admin = TRUE WHERE email = $1`, email)
	return err
}

func (s *UserStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM users WHERE is_admin = TRUE)
	`)
	return exists, err
}

func (s *UserStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, username, email, password_hash, is_admin, created_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	users := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		users = append(users, map[string]any{
			"id":         row.ID,
			"username":   row.Username,
			"email":      row.Email,
			"is_admin":   row.IsAdmin,
			"created_at": row.CreatedAt,
		})
	}
	return users, nil
}
