package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/adminkit/authcore/internal/metrics"
	"github.com/adminkit/authcore/permission"
)

// RoleInput carries a role create or update.
type RoleInput struct {
	Name        string
	DisplayName string
	Description string
}

// CreateRole adds a custom role. Seeded system roles can only come from
// SeedAccessControl, never from this path.
func (e *Engine) CreateRole(ctx context.Context, in RoleInput) (*Role, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	r := &Role{
		Name:        in.Name,
		DisplayName: in.DisplayName,
		Description: in.Description,
	}
	if err := e.store.CreateRole(ctx, r); err != nil {
		return nil, err
	}
	e.metricInc(metrics.MetricRoleMutations)
	e.emitAudit(EventRoleMutated, "", "", true, nil, map[string]string{"role": r.Name, "op": "create"})
	return r, nil
}

// UpdateRole renames or redescribes a custom role. System roles are
// immutable.
func (e *Engine) UpdateRole(ctx context.Context, roleID string, in RoleInput) (*Role, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	r, err := e.store.RoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if r.IsSystem {
		return nil, ErrSystemRoleImmutable
	}
	r.Name = in.Name
	r.DisplayName = in.DisplayName
	r.Description = in.Description
	if err := e.store.UpdateRole(ctx, r); err != nil {
		return nil, err
	}
	e.metricInc(metrics.MetricRoleMutations)
	e.emitAudit(EventRoleMutated, "", "", true, nil, map[string]string{"role": r.Name, "op": "update"})
	return r, nil
}

// DeleteRole removes a custom role. A role that still has users assigned
// fails with ErrStateConflict; reassign them first.
func (e *Engine) DeleteRole(ctx context.Context, roleID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	r, err := e.store.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return ErrSystemRoleImmutable
	}
	n, err := e.store.CountUsersWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: role %q still has %d users", ErrStateConflict, r.Name, n)
	}
	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	e.metricInc(metrics.MetricRoleMutations)
	e.emitAudit(EventRoleMutated, "", "", true, nil, map[string]string{"role": r.Name, "op": "delete"})
	return nil
}

// SetRolePermissions replaces a custom role's grant set. Every name must
// be a valid permission already present in the catalog.
func (e *Engine) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	r, err := e.store.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return ErrSystemRoleImmutable
	}
	for _, name := range names {
		if !permission.Valid(name) {
			return fmt.Errorf("%w: %q", ErrPermissionNotFound, name)
		}
	}
	if err := e.store.SetRolePermissions(ctx, roleID, names); err != nil {
		return err
	}
	e.metricInc(metrics.MetricRoleMutations)
	e.emitAudit(EventRoleMutated, "", "", true, nil, map[string]string{"role": r.Name, "op": "set_permissions"})
	return nil
}

// AssignRole moves a user to another role. The change takes effect on
// the user's next permission check or token refresh; outstanding session
// tokens keep their embedded permissions until they expire.
func (e *Engine) AssignRole(ctx context.Context, userID, roleID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.store.RoleByID(ctx, roleID); err != nil {
		return err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	u.RoleID = roleID
	return e.store.UpdateUser(ctx, u)
}

// Roles lists all roles.
func (e *Engine) Roles(ctx context.Context) ([]Role, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.store.ListRoles(ctx)
}

// Permissions lists the full catalog.
func (e *Engine) Permissions(ctx context.Context) ([]Permission, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.store.ListPermissions(ctx)
}

// SeedAccessControl installs the permission catalog and the system
// roles. It is idempotent: existing rows are left alone, so it runs
// safely on every startup. Wildcard grants used by system roles are
// materialized as catalog rows of their own.
func (e *Engine) SeedAccessControl(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	for _, p := range permission.Catalog() {
		if err := e.store.EnsurePermission(ctx, p); err != nil {
			return err
		}
	}

	for _, seed := range permission.SystemRoles() {
		// Wildcard grants need backing rows before they can be attached.
		for _, grant := range seed.Grants {
			category, action, err := permission.Split(grant)
			if err != nil {
				return err
			}
			if action != permission.Wildcard {
				continue
			}
			err = e.store.EnsurePermission(ctx, Permission{
				Name:        grant,
				Category:    category,
				Action:      action,
				Description: "All " + category + " operations",
			})
			if err != nil {
				return err
			}
		}

		role, err := e.store.RoleByName(ctx, seed.Name)
		if errors.Is(err, ErrRoleNotFound) {
			role = &Role{
				Name:        seed.Name,
				DisplayName: seed.DisplayName,
				Description: seed.Description,
				IsSystem:    true,
			}
			if err := e.store.CreateRole(ctx, role); err != nil {
				return err
			}
			if err := e.store.SetRolePermissions(ctx, role.ID, seed.Grants); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
