package permission

import (
	"errors"
	"strings"
)

// Wildcard is the action suffix granting every action in a category.
const Wildcard = "*"

// SystemWildcard grants every permission in the system.
const SystemWildcard = "system.*"

var errInvalidName = errors.New("permission name must be <category>.<action>")

// Split breaks a permission name into category and action. Names without a
// separator are rejected; the engine never stores bare categories.
func Split(name string) (category, action string, err error) {
	i := strings.IndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", errInvalidName
	}
	return name[:i], name[i+1:], nil
}

// Valid reports whether name is a well-formed permission name.
func Valid(name string) bool {
	_, _, err := Split(name)
	return err == nil
}

// Match reports whether the grant set covers the requested permission.
// Priority order: exact name, then "<category>.*", then "system.*". The
// order is observationally irrelevant (any hit allows) but is fixed so
// audits can name the matching grant deterministically.
func Match(granted []string, requested string) bool {
	if requested == "" {
		return false
	}
	for _, g := range granted {
		if g == requested {
			return true
		}
	}
	if i := strings.IndexByte(requested, '.'); i > 0 {
		categoryWildcard := requested[:i+1] + Wildcard
		for _, g := range granted {
			if g == categoryWildcard {
				return true
			}
		}
	}
	for _, g := range granted {
		if g == SystemWildcard {
			return true
		}
	}
	return false
}

// Definition describes one catalog entry.
type Definition struct {
	Name        string
	Category    string
	Action      string
	Description string
}

// RoleSeed describes one seeded system role and its grants.
type RoleSeed struct {
	Name        string
	DisplayName string
	Description string
	Grants      []string
}

// Catalog returns the seeded permission definitions. The engine writes these
// into the credential store once at bootstrap; they are immutable afterwards
// in normal operation.
func Catalog() []Definition {
	defs := []Definition{
		{Name: SystemWildcard, Category: "system", Action: "all", Description: "All system permissions"},

		{Name: "roles.create", Category: "roles", Action: "create", Description: "Create new roles"},
		{Name: "roles.read", Category: "roles", Action: "read", Description: "View roles"},
		{Name: "roles.update", Category: "roles", Action: "update", Description: "Update roles"},
		{Name: "roles.delete", Category: "roles", Action: "delete", Description: "Delete roles"},
		{Name: "permissions.assign", Category: "permissions", Action: "assign", Description: "Assign permissions to roles"},

		{Name: "users.create", Category: "users", Action: "create", Description: "Create new users"},
		{Name: "users.read", Category: "users", Action: "read", Description: "View users"},
		{Name: "users.update", Category: "users", Action: "update", Description: "Update user information"},
		{Name: "users.delete", Category: "users", Action: "delete", Description: "Delete users"},
		{Name: "users.assign_role", Category: "users", Action: "assign_role", Description: "Assign roles to users"},

		{Name: "products.create", Category: "products", Action: "create", Description: "Create products"},
		{Name: "products.read", Category: "products", Action: "read", Description: "View products"},
		{Name: "products.update", Category: "products", Action: "update", Description: "Update products"},
		{Name: "products.delete", Category: "products", Action: "delete", Description: "Delete products"},

		{Name: "payments.read", Category: "payments", Action: "read", Description: "View payments"},
		{Name: "payments.refund", Category: "payments", Action: "refund", Description: "Process refunds"},

		{Name: "analytics.read", Category: "analytics", Action: "read", Description: "View analytics"},
		{Name: "analytics.export", Category: "analytics", Action: "export", Description: "Export analytics data"},

		{Name: "dashboard.read", Category: "dashboard", Action: "read", Description: "View dashboard"},

		{Name: "profile.read", Category: "profile", Action: "read", Description: "View own profile"},
		{Name: "profile.update", Category: "profile", Action: "update", Description: "Update own profile"},

		{Name: "settings.read", Category: "settings", Action: "read", Description: "View settings"},
		{Name: "settings.update", Category: "settings", Action: "update", Description: "Update settings"},

		{Name: "notifications.read", Category: "notifications", Action: "read", Description: "View notifications"},
		{Name: "notifications.send", Category: "notifications", Action: "send", Description: "Send notifications"},
	}
	return defs
}

// SystemRoles returns the seeded immutable roles. They can never be edited
// or deleted through role administration.
func SystemRoles() []RoleSeed {
	return []RoleSeed{
		{
			Name:        "super_admin",
			DisplayName: "Super Admin",
			Description: "Unrestricted access to every capability",
			Grants:      []string{SystemWildcard},
		},
		{
			Name:        "admin",
			DisplayName: "Admin",
			Description: "Full user, role, and settings administration",
			Grants: []string{
				"users.*", "roles.*", "permissions.assign",
				"settings.*", "dashboard.read", "analytics.read",
				"notifications.*", "profile.*",
			},
		},
		{
			Name:        "manager",
			DisplayName: "Manager",
			Description: "Operational management without role administration",
			Grants: []string{
				"users.read", "users.update",
				"products.*", "payments.read", "payments.refund",
				"analytics.read", "dashboard.read",
				"notifications.read", "profile.*",
			},
		},
		{
			Name:        "analyst",
			DisplayName: "Analyst",
			Description: "Read and export analytics",
			Grants: []string{
				"analytics.*", "dashboard.read",
				"products.read", "payments.read", "profile.*",
			},
		},
		{
			Name:        "user",
			DisplayName: "User",
			Description: "Own profile and dashboard only",
			Grants: []string{
				"profile.*", "dashboard.read", "notifications.read",
			},
		},
	}
}
