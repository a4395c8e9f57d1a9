package authcore

import (
	"bytes"
	"context"
	"encoding/base32"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adminkit/authcore/token"
)

// fakeStore is a minimal in-package Store used by engine tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*User
	codes map[string]map[string]struct{}
	roles map[string]*Role
	perms map[string][]string
	defs  map[string]Permission

	// Injectable faults for write-ordering tests.
	setMFAErr       error
	replaceCodesErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*User),
		codes: make(map[string]map[string]struct{}),
		roles: make(map[string]*Role),
		perms: make(map[string][]string),
		defs:  make(map[string]Permission),
	}
}

func (s *fakeStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return ErrDuplicateIdentity
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) UserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) UpdateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) CountUsersWithRole(_ context.Context, roleID string) (int, error) {
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

func (s *fakeStore) SetMFA(_ context.Context, userID string, enabled bool, secretEnc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setMFAErr != nil {
		return s.setMFAErr
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.MFAEnabled = enabled
	u.MFASecretEnc = secretEnc
	return nil
}

func (s *fakeStore) ReplaceBackupCodes(_ context.Context, userID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceCodesErr != nil {
		return s.replaceCodesErr
	}
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	s.codes[userID] = set
	return nil
}

func (s *fakeStore) ConsumeBackupCode(_ context.Context, userID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.codes[userID]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (s *fakeStore) CreateRole(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.roles {
		if other.Name == r.Name {
			return ErrDuplicateIdentity
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *fakeStore) RoleByID(_ context.Context, id string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) RoleByName(_ context.Context, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRoleNotFound
}

func (s *fakeStore) UpdateRole(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return ErrRoleNotFound
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *fakeStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(s.roles, id)
	delete(s.perms, id)
	return nil
}

func (s *fakeStore) ListRoles(_ context.Context) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) SetRolePermissions(_ context.Context, roleID string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	s.perms[roleID] = append([]string(nil), names...)
	return nil
}

func (s *fakeStore) RolePermissions(_ context.Context, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, ErrRoleNotFound
	}
	return append([]string(nil), s.perms[roleID]...), nil
}

func (s *fakeStore) EnsurePermission(_ context.Context, p Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[p.Name]; !ok {
		s.defs[p.Name] = p
	}
	return nil
}

func (s *fakeStore) ListPermissions(_ context.Context) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Permission, 0, len(s.defs))
	for _, p := range s.defs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// recordingNotifier captures the tokens that would be mailed out.
type recordingNotifier struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		verifications: make(map[string]string),
		resets:        make(map[string]string),
	}
}

func (n *recordingNotifier) VerificationEmail(_ context.Context, email, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[email] = token
	return nil
}

func (n *recordingNotifier) PasswordResetEmail(_ context.Context, email, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[email] = token
	return nil
}

var testMFAKey = bytes.Repeat([]byte{0x42}, 32)

func tokenTestConfig() token.Config {
	return token.Config{
		SigningKey: bytes.Repeat([]byte{0x7f}, 32),
		Issuer:     "authcore-test",
	}
}

func mustDecodeBase32(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		t.Fatalf("decoding secret: %v", err)
	}
	return raw
}

func testConfig() Config {
	return Config{
		Token: tokenTestConfig(),
		MFA: MFAConfig{
			SecretKey: testMFAKey,
			Issuer:    "AdminKit Test",
		},
		Metrics: MetricsConfig{Enabled: true},
		Registration: RegistrationConfig{
			Open:                     true,
			RequireEmailVerification: true,
		},
	}
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) (*Engine, *fakeStore, *recordingNotifier) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	store := newFakeStore()
	notifier := newRecordingNotifier()
	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine, store, notifier
}

// registerVerified creates a user ready to log in.
func registerVerified(t *testing.T, e *Engine, store *fakeStore, email, pass string) *User {
	t.Helper()
	u, err := e.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: pass,
		FullName: "Test User",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	u.EmailVerified = true
	if err := store.UpdateUser(context.Background(), u); err != nil {
		t.Fatalf("marking verified: %v", err)
	}
	return u
}

// currentTOTP computes the valid code for a base32 secret at the given time.
func currentTOTP(t *testing.T, e *Engine, secretBase32 string, at time.Time) string {
	t.Helper()
	secret := mustDecodeBase32(t, secretBase32)
	period := int64(e.config.MFA.Period / time.Second)
	return hotpCode(secret, at.Unix()/period, e.config.MFA.Digits)
}
