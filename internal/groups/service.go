// Package groups manages rosters: creation, joining, leaving and the
// admin-gated membership edits.
package groups

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/balance"
	"splitledger/internal/core"
	"splitledger/internal/storage"
)

type Service struct {
	store    storage.Store
	balances balance.Invalidator
}

func NewService(store storage.Store, balances balance.Invalidator) *Service {
	return &Service{store: store, balances: balances}
}

// Create builds a group with the creator as admin plus any initial members.
func (s *Service) Create(ctx context.Context, creator uuid.UUID, name, description string, initialMemberIDs []uuid.UUID) (core.Group, error) {
	g, err := core.NewGroup(creator, name, description, initialMemberIDs)
	if err != nil {
		return core.Group{}, err
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}

	slog.InfoContext(ctx, "Group created",
		"group_id", g.ID, "name", g.Name, "members", len(g.Members))
	return g, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (core.Group, error) {
	return s.store.GetGroup(ctx, id)
}

// Join adds the user to the roster as a regular member. Joining a group the
// user already belongs to fails with ErrAlreadyMember.
func (s *Service) Join(ctx context.Context, groupID, userID uuid.UUID) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	m := core.Membership{UserID: userID, Role: core.RoleMember, JoinedAt: time.Now().UTC()}
	if err := s.store.AddMember(ctx, groupID, m); err != nil {
		return err
	}
	s.invalidate(groupID, userID)
	return nil
}

// Leave removes the user from the roster. Leaving is always permitted, even
// for the last admin or with debts outstanding: balances never depend on
// membership, so the ledger stays intact and the departed user shows up as
// stale in group balances.
func (s *Service) Leave(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := s.store.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidate(groupID, userID)
	return nil
}

// AddMember puts another user on the roster. Requester must be an admin.
func (s *Service) AddMember(ctx context.Context, groupID, requester, userID uuid.UUID) error {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.IsAdmin(requester) {
		return core.ErrNotAuthorized
	}
	m := core.Membership{UserID: userID, Role: core.RoleMember, JoinedAt: time.Now().UTC()}
	if err := s.store.AddMember(ctx, groupID, m); err != nil {
		return err
	}
	s.invalidate(groupID, userID)
	return nil
}

// RemoveMember takes another user off the roster. Requester must be an
// admin; removing oneself is Leave and needs no privilege.
func (s *Service) RemoveMember(ctx context.Context, groupID, requester, userID uuid.UUID) error {
	if requester == userID {
		return s.Leave(ctx, groupID, userID)
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.IsAdmin(requester) {
		return core.ErrNotAuthorized
	}
	if err := s.store.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidate(groupID, userID)
	return nil
}

// Members returns the roster in join order.
func (s *Service) Members(ctx context.Context, groupID uuid.UUID) ([]core.Membership, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

// invalidate drops memoized group balances after a roster change: the stale
// user annotation depends on the roster even though the amounts do not.
func (s *Service) invalidate(groupID, userID uuid.UUID) {
	if s.balances == nil {
		return
	}
	s.balances.InvalidateGroup(groupID)
	s.balances.InvalidateUsers(userID)
}
