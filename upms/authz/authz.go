// Package authz answers "may this user perform action on resource" with a
// casbin RBAC enforcer fed from the UPMS tables.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/repository"
)

//go:embed rbac_model.conf
var rbacModel string

// Wildcard matches any resource or action in a permission.
const Wildcard = "*"

// Authorizer holds the in-memory policy. Enforce calls share a read lock;
// policy edits and reloads take the write lock.
type Authorizer struct {
	mu        sync.RWMutex
	enforcer  *casbin.Enforcer
	source    repository.PolicySource
	superRole string
}

// NewAuthorizer loads the current policy from source. Holders of superRole
// are allowed everything.
func NewAuthorizer(ctx context.Context, source repository.PolicySource, superRole string) (*Authorizer, error) {
	a := &Authorizer{source: source, superRole: superRole}
	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func newEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	return e, nil
}

func userSubject(id uuid.UUID) string { return "user:" + id.String() }
func roleSubject(code string) string  { return "role:" + code }

// Reload rebuilds the policy from the source and swaps it in.
func (a *Authorizer) Reload(ctx context.Context) error {
	perms, err := a.source.ListPermissions(ctx)
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}
	assignments, err := a.source.ListAssignments(ctx)
	if err != nil {
		return fmt.Errorf("load role assignments: %w", err)
	}

	e, err := newEnforcer()
	if err != nil {
		return err
	}
	if a.superRole != "" {
		if _, err := e.AddPolicy(roleSubject(a.superRole), Wildcard, Wildcard); err != nil {
			return fmt.Errorf("add super role policy: %w", err)
		}
	}
	for _, p := range perms {
		if _, err := e.AddPolicy(roleSubject(p.RoleCode), p.Resource, p.Action); err != nil {
			return fmt.Errorf("add policy %s %s %s: %w", p.RoleCode, p.Resource, p.Action, err)
		}
	}
	for _, ra := range assignments {
		if _, err := e.AddGroupingPolicy(userSubject(ra.UserID), roleSubject(ra.RoleCode)); err != nil {
			return fmt.Errorf("add role %s for %s: %w", ra.RoleCode, ra.UserID, err)
		}
	}

	a.mu.Lock()
	a.enforcer = e
	a.mu.Unlock()

	log.InfoWithContext(ctx, "authz: loaded %d permissions and %d role assignments", len(perms), len(assignments))
	return nil
}

// Enforce reports whether the user may perform action on resource.
func (a *Authorizer) Enforce(userID uuid.UUID, resource, action string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enforcer.Enforce(userSubject(userID), resource, action)
}

// Grant adds p to the live policy.
func (a *Authorizer) Grant(p models.Permission) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.enforcer.AddPolicy(roleSubject(p.RoleCode), p.Resource, p.Action)
	return err
}

// Revoke removes p from the live policy. The super role grant is kept.
func (a *Authorizer) Revoke(p models.Permission) error {
	if p.RoleCode == a.superRole && p.Resource == Wildcard && p.Action == Wildcard {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.enforcer.RemovePolicy(roleSubject(p.RoleCode), p.Resource, p.Action)
	return err
}

// SetRoles replaces the user's role assignments in the live policy.
func (a *Authorizer) SetRoles(userID uuid.UUID, roles []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.enforcer.DeleteRolesForUser(userSubject(userID)); err != nil {
		return err
	}
	for _, code := range roles {
		if _, err := a.enforcer.AddGroupingPolicy(userSubject(userID), roleSubject(code)); err != nil {
			return err
		}
	}
	return nil
}
