package auth

import (
	"context"
	"errors"
)

// RoleSource looks up the role currently held by an actor.
type RoleSource interface {
	RoleOf(ctx context.Context, username string) (Role, error)
}

// Gate decides whether an actor may operate the manual shutdown controls.
// Roles are read on every call; revocations take effect immediately.
type Gate struct {
	roles RoleSource
}

func NewGate(roles RoleSource) *Gate {
	return &Gate{roles: roles}
}

func (g *Gate) IsAuthorized(ctx context.Context, actor string) (bool, error) {
	if actor == "" {
		return false, nil
	}
	role, err := g.roles.RoleOf(ctx, actor)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return role.Privileged(), nil
}
