// Package memory provides a mutex-guarded in-process implementation of
// authcore.Store. It backs tests and single-node development setups;
// production deployments use store/postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	authcore "github.com/adminkit/authcore"
)

// Store keeps all records in maps. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	users       map[string]*authcore.User
	emailIndex  map[string]string
	backupCodes map[string]map[string]struct{}

	roles       map[string]*authcore.Role
	roleNames   map[string]string
	rolePerms   map[string][]string
	permissions map[string]authcore.Permission
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*authcore.User),
		emailIndex:  make(map[string]string),
		backupCodes: make(map[string]map[string]struct{}),
		roles:       make(map[string]*authcore.Role),
		roleNames:   make(map[string]string),
		rolePerms:   make(map[string][]string),
		permissions: make(map[string]authcore.Permission),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(_ context.Context, u *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, exists := s.emailIndex[key]; exists {
		return authcore.ErrDuplicateIdentity
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	s.users[u.ID] = &cp
	s.emailIndex[key] = u.ID
	return nil
}

func (s *Store) UserByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emailIndex[normalizeEmail(email)]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) UpdateUser(_ context.Context, u *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	newKey := normalizeEmail(u.Email)
	oldKey := normalizeEmail(cur.Email)
	if newKey != oldKey {
		if _, exists := s.emailIndex[newKey]; exists {
			return authcore.ErrDuplicateIdentity
		}
		delete(s.emailIndex, oldKey)
		s.emailIndex[newKey] = u.ID
	}
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) CountUsersWithRole(_ context.Context, roleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.users {
		if u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetMFA(_ context.Context, userID string, enabled bool, secretEnc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	u.MFAEnabled = enabled
	u.MFASecretEnc = secretEnc
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return authcore.ErrUserNotFound
	}
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	s.backupCodes[userID] = set
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, userID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.backupCodes[userID]
	if !ok {
		return false, nil
	}
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (s *Store) CreateRole(_ context.Context, r *authcore.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roleNames[r.Name]; exists {
		return authcore.ErrDuplicateIdentity
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	cp := *r
	s.roles[r.ID] = &cp
	s.roleNames[r.Name] = r.ID
	return nil
}

func (s *Store) RoleByID(_ context.Context, id string) (*authcore.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, authcore.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) RoleByName(_ context.Context, name string) (*authcore.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.roleNames[name]
	if !ok {
		return nil, authcore.ErrRoleNotFound
	}
	cp := *s.roles[id]
	return &cp, nil
}

func (s *Store) UpdateRole(_ context.Context, r *authcore.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.roles[r.ID]
	if !ok {
		return authcore.ErrRoleNotFound
	}
	if r.Name != cur.Name {
		if _, exists := s.roleNames[r.Name]; exists {
			return authcore.ErrDuplicateIdentity
		}
		delete(s.roleNames, cur.Name)
		s.roleNames[r.Name] = r.ID
	}
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[id]
	if !ok {
		return authcore.ErrRoleNotFound
	}
	delete(s.roleNames, r.Name)
	delete(s.roles, id)
	delete(s.rolePerms, id)
	return nil
}

func (s *Store) ListRoles(_ context.Context) ([]authcore.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]authcore.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return authcore.ErrRoleNotFound
	}
	for _, name := range names {
		if _, ok := s.permissions[name]; !ok {
			return authcore.ErrPermissionNotFound
		}
	}
	s.rolePerms[roleID] = append([]string(nil), names...)
	return nil
}

func (s *Store) RolePermissions(_ context.Context, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return nil, authcore.ErrRoleNotFound
	}
	return append([]string(nil), s.rolePerms[roleID]...), nil
}

func (s *Store) EnsurePermission(_ context.Context, p authcore.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.permissions[p.Name]; !exists {
		s.permissions[p.Name] = p
	}
	return nil
}

func (s *Store) ListPermissions(_ context.Context) ([]authcore.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]authcore.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
