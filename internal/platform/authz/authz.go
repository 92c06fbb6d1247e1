package authz

import (
	"context"
	"slices"
)

// Permission names a capability checked before reading or mutating communication data.
type Permission string

const (
	PermMessagesRead    Permission = "messages:read"
	PermMessagesSend    Permission = "messages:send"
	PermTemplatesManage Permission = "templates:manage"
	PermSettingsManage  Permission = "settings:manage"
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID       string
	IsSuperAdmin bool
	Permissions  []string
	// BranchIDs limits the actor to these branches. Empty means no branch restriction.
	BranchIDs []string
}

// System is the actor used by background workers and the admin CLI.
var System = Actor{UserID: "system", IsSuperAdmin: true}

// Checker answers whether an actor holds a permission for a branch.
// Role and permission storage lives outside this module; implementations only evaluate.
type Checker interface {
	Can(ctx context.Context, actor Actor, perm Permission, branchID string) bool
}

// ClaimsChecker evaluates the permissions carried by the actor's token claims.
type ClaimsChecker struct{}

func NewClaimsChecker() *ClaimsChecker {
	return &ClaimsChecker{}
}

func (c *ClaimsChecker) Can(_ context.Context, actor Actor, perm Permission, branchID string) bool {
	// super admin is checked before anything else
	if actor.IsSuperAdmin {
		return true
	}
	if actor.UserID == "" {
		return false
	}
	if branchID != "" && len(actor.BranchIDs) > 0 && !slices.Contains(actor.BranchIDs, branchID) {
		return false
	}
	return slices.Contains(actor.Permissions, string(perm))
}
