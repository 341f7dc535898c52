package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabicam/gabicam/internal/db"
	"golang.org/x/crypto/bcrypt"
)

type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	cost   int
}

func NewSQLStore(dbh *sql.DB, driver db.Driver, bcryptCost int) *SQLStore {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &SQLStore{db: dbh, driver: driver, cost: bcryptCost}
}

func (s *SQLStore) q(query string) string { return db.Rebind(s.driver, query) }

// Register creates a user with a bcrypt-hashed password.
func (s *SQLStore) Register(ctx context.Context, in NewUser) (User, error) {
	reg := strings.TrimSpace(in.Registration)
	if _, err := s.ByRegistration(ctx, reg); err == nil {
		return User{}, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	role := in.Role
	if role == "" {
		role = RoleTeacher
	}
	now := time.Now()
	id, err := db.InsertID(ctx, s.db, s.driver,
		s.q(`INSERT INTO users (registration, name, password_hash, role, created_at) VALUES (?,?,?,?,?)`),
		reg, strings.TrimSpace(in.Name), string(hash), role, now.Unix())
	if db.IsUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return User{ID: id, Registration: reg, Name: strings.TrimSpace(in.Name), Role: role, PasswordHash: string(hash), CreatedAt: time.Unix(now.Unix(), 0)}, nil
}

// Authenticate checks the password for a registration number.
func (s *SQLStore) Authenticate(ctx context.Context, registration, password string) (User, error) {
	u, err := s.ByRegistration(ctx, registration)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidPassword
	}
	return u, nil
}

func (s *SQLStore) ByRegistration(ctx context.Context, registration string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, registration, name, password_hash, role, created_at FROM users WHERE registration=?`),
		strings.TrimSpace(registration))
	return scanUser(row)
}

func (s *SQLStore) ByID(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, registration, name, password_hash, role, created_at FROM users WHERE id=?`), id)
	return scanUser(row)
}

// ChangePassword verifies the old password before storing the new hash.
func (s *SQLStore) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	u, err := s.ByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE users SET password_hash=? WHERE id=?`), string(hash), id)
	return err
}

// List returns users ordered by name, optionally filtered by role.
func (s *SQLStore) List(ctx context.Context, role string) ([]User, error) {
	var rows *sql.Rows
	var err error
	if role == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, registration, name, password_hash, role, created_at FROM users ORDER BY name`)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, registration, name, password_hash, role, created_at FROM users WHERE role=? ORDER BY name`), role)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Upsert inserts a new user or updates name/role (and password when given) of
// an existing registration. A blank role keeps the stored one, and the last
// admin cannot be demoted. Returns true when a row was inserted.
func (s *SQLStore) Upsert(ctx context.Context, in NewUser) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role != "" && role != RoleTeacher && role != RoleAdmin {
		return false, ErrInvalidRole
	}
	var phash string
	if in.Password != "" {
		b, e := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
		if e != nil {
			return false, e
		}
		phash = string(b)
	}

	var id int64
	var current string
	err = tx.QueryRowContext(ctx, s.q(`SELECT id, role FROM users WHERE registration=?`), in.Registration).Scan(&id, &current)
	switch {
	case err == nil:
		if role == "" {
			role = current
		}
		if err = s.keepAdmin(ctx, tx, current, role); err != nil {
			return false, err
		}
		if phash != "" {
			_, err = tx.ExecContext(ctx, s.q(`UPDATE users SET name=?, role=?, password_hash=? WHERE id=?`), in.Name, role, phash, id)
		} else {
			_, err = tx.ExecContext(ctx, s.q(`UPDATE users SET name=?, role=? WHERE id=?`), in.Name, role, id)
		}
		return false, err
	case errors.Is(err, sql.ErrNoRows):
		if phash == "" {
			return false, fmt.Errorf("%w: %s", ErrPasswordRequired, in.Registration)
		}
		if role == "" {
			role = RoleTeacher
		}
		_, err = db.InsertID(ctx, tx, s.driver,
			s.q(`INSERT INTO users (registration, name, password_hash, role, created_at) VALUES (?,?,?,?,?)`),
			in.Registration, in.Name, phash, role, time.Now().Unix())
		if db.IsUniqueViolation(err) {
			err = ErrDuplicate
		}
		return err == nil, err
	default:
		return false, err
	}
}

// keepAdmin refuses a change from admin to another role when no other admin exists.
func (s *SQLStore) keepAdmin(ctx context.Context, tx *sql.Tx, current, next string) error {
	if current != RoleAdmin || next == RoleAdmin {
		return nil
	}
	var admins int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM users WHERE role=?`), RoleAdmin).Scan(&admins); err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// SetRole changes the role of a registration. The last admin cannot be demoted.
func (s *SQLStore) SetRole(ctx context.Context, registration, role string) (u User, err error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleTeacher && role != RoleAdmin {
		return User{}, ErrInvalidRole
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	u, err = scanUser(tx.QueryRowContext(ctx,
		s.q(`SELECT id, registration, name, password_hash, role, created_at FROM users WHERE registration=?`),
		strings.TrimSpace(registration)))
	if err != nil {
		return User{}, err
	}
	if err = s.keepAdmin(ctx, tx, u.Role, role); err != nil {
		return User{}, err
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE users SET role=? WHERE id=?`), role, u.ID); err != nil {
		return User{}, err
	}
	u.Role = role
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Registration, &u.Name, &u.PasswordHash, &u.Role, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.CreatedAt = time.Unix(created, 0)
	return u, nil
}
