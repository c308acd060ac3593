package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("username already exists")
	// ErrMissingCredentials is returned for an empty username or password.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrBadCredentials is returned when a username or password does not match.
	ErrBadCredentials = errors.New("invalid username or password")
)

// userDB keeps accounts in memory with bcrypt password hashes.
type userDB struct {
	mu     sync.RWMutex
	hashes map[string][]byte
	cost   int
}

func newUserDB(cost int) *userDB {
	return &userDB{hashes: make(map[string][]byte), cost: cost}
}

// Register creates an account.
func (u *userDB) Register(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.hashes[username]; ok {
		return ErrUserExists
	}
	u.hashes[username] = hash
	return nil
}

// Authenticate checks a username and password pair.
func (u *userDB) Authenticate(username, password string) error {
	u.mu.RLock()
	hash, ok := u.hashes[strings.TrimSpace(username)]
	u.mu.RUnlock()
	if !ok {
		// Burn comparable time for unknown users.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// Usernames returns every registered username, sorted.
func (u *userDB) Usernames() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	names := make([]string, 0, len(u.hashes))
	for name := range u.hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("nexus-devserver"), bcrypt.MinCost)
