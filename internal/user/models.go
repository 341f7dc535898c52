package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrDuplicate        = errors.New("registration already in use")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrInvalidRole      = errors.New("invalid role")
	ErrLastAdmin        = errors.New("cannot demote the last admin")
	ErrPasswordRequired = errors.New("password required for new user")
)

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	Registration string    `json:"matricula"`
	Name         string    `json:"nome"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"data_criacao"`
}

// NewUser is the input for registration and bulk upserts. Password is plaintext.
type NewUser struct {
	Registration string `json:"matricula" validate:"required,max=64"`
	Name         string `json:"nome" validate:"required,max=255"`
	Password     string `json:"senha" validate:"required,min=4"`
	Role         string `json:"role,omitempty" validate:"omitempty,oneof=teacher admin"`
}
