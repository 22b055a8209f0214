package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership associates a user with a group.
type Membership struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Group is a roster of members sharing expenses. The creator is always
// effectively admin while a member, whatever their stored role says.
type Group struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CreatedBy   uuid.UUID    `json:"created_by"`
	Members     []Membership `json:"members"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewGroup builds a group with the creator as admin. Duplicate ids in
// initialMemberIDs collapse to one membership; the creator's entry wins over
// any member-role duplicate.
func NewGroup(creator uuid.UUID, name, description string, initialMemberIDs []uuid.UUID) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, ErrEmptyName
	}

	now := time.Now().UTC()
	g := Group{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   creator,
		CreatedAt:   now,
	}
	g.Members = append(g.Members, Membership{UserID: creator, Role: RoleAdmin, JoinedAt: now})
	for _, id := range initialMemberIDs {
		if g.IsMember(id) {
			continue
		}
		g.Members = append(g.Members, Membership{UserID: id, Role: RoleMember, JoinedAt: now})
	}
	return g, nil
}

func (g Group) IsMember(userID uuid.UUID) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user may administer the group. The creator is
// always admin while a member, even if their stored role is "member".
func (g Group) IsAdmin(userID uuid.UUID) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m.Role == RoleAdmin || userID == g.CreatedBy
		}
	}
	return false
}

// MemberIDs returns the roster in join order.
func (g Group) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}
