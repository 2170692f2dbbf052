package user

import (
	"context"
	"errors"
	"sync"
)

const RoleCoordinator = "coordinator"

var ErrUserNotFound = errors.New("user not found")

// User is an operator account allowed to administer questions.
type User struct {
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

type Repository interface {
	GetByName(ctx context.Context, name string) (*User, error)
}

// StaticRepository serves accounts fixed at startup, typically the
// coordinator configured through the environment.
type StaticRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewStaticRepository(users ...User) *StaticRepository {
	r := &StaticRepository{users: make(map[string]User, len(users))}
	for _, u := range users {
		r.users[u.Name] = u
	}
	return r
}

func (r *StaticRepository) GetByName(ctx context.Context, name string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	copyUser := u
	return &copyUser, nil
}
