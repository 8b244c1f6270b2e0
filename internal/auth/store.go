package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

var ErrUserNotFound = errors.New("user not found")

// Store is the Postgres user table. Roles are edited outside the engine; it
// only reads them, apart from seeding.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`
	u := &User{}
	err := s.db.QueryRowContext(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RoleOf reads the role currently recorded for username.
func (s *Store) RoleOf(ctx context.Context, username string) (Role, error) {
	const q = `SELECT role FROM users WHERE username = $1`
	var role Role
	err := s.db.QueryRowContext(ctx, q, username).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return role, err
}

// CreateIfMissing inserts a user unless the username is taken. It reports
// whether a row was written.
func (s *Store) CreateIfMissing(ctx context.Context, username, password string, role Role) (bool, error) {
	if !role.Valid() {
		return false, fmt.Errorf("user %s: unknown role %q", username, role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	const q = `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, q, username, string(hash), role)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SeedUser is one entry of the users file.
type SeedUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     Role   `yaml:"role"`
}

// LoadSeedFile parses a users YAML file. A missing file yields no users.
func LoadSeedFile(path string) ([]SeedUser, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc struct {
		Users []SeedUser `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, u := range doc.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("parse %s: username and password are required", path)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("parse %s: user %s has unknown role %q", path, u.Username, u.Role)
		}
	}
	return doc.Users, nil
}

// SeedFromFile creates the users listed in path that do not exist yet and
// returns how many were created.
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	users, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, u := range users {
		ok, err := s.CreateIfMissing(ctx, u.Username, u.Password, u.Role)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
