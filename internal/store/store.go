// Package store persists known servers and user settings.
//
// Server entries are append-only: an entry whose (ip, port, username)
// already exists is never added again, and its password is never updated.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidEntry is returned by AddServer for entries without an address
// or username.
var ErrInvalidEntry = errors.New("invalid server entry")

// ServerEntry is one persisted server. The password is stored as given.
type ServerEntry struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SameServer reports whether e and o describe the same (ip, port, username).
func (e ServerEntry) SameServer(o ServerEntry) bool {
	return e.IP == o.IP && e.Port == o.Port && e.Username == o.Username
}

func (e ServerEntry) validate() error {
	if strings.TrimSpace(e.IP) == "" || e.Port <= 0 || strings.TrimSpace(e.Username) == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Notifications groups the notification toggles of Settings.
type Notifications struct {
	Enabled       bool `json:"enabled"`
	Messages      bool `json:"messages"`
	StatusChanges bool `json:"statusChanges"`
}

// Settings is the user preference record.
type Settings struct {
	Theme         string        `json:"theme"`
	FontSize      int           `json:"fontSize"`
	ReduceMotion  bool          `json:"reduceMotion"`
	HighContrast  bool          `json:"highContrast"`
	Notifications Notifications `json:"notifications"`
}

// DefaultSettings is returned when nothing has been saved yet.
func DefaultSettings() Settings {
	return Settings{
		Theme:    "dark",
		FontSize: 14,
		Notifications: Notifications{
			Enabled:       true,
			Messages:      true,
			StatusChanges: true,
		},
	}
}

// Store is implemented by JSONStore and SQLiteStore.
type Store interface {
	// Servers returns every entry in insertion order.
	Servers(ctx context.Context) ([]ServerEntry, error)
	// AddServer appends e unless an entry for the same server exists.
	// It reports whether e was added.
	AddServer(ctx context.Context, e ServerEntry) (bool, error)
	// FindServer returns the first entry for ip:port and username. An empty
	// username matches any entry for the address.
	FindServer(ctx context.Context, ip string, port int, username string) (ServerEntry, bool, error)
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	Close() error
}

func findIn(entries []ServerEntry, ip string, port int, username string) (ServerEntry, bool) {
	for _, e := range entries {
		if e.IP != ip || e.Port != port {
			continue
		}
		if username == "" || e.Username == username {
			return e, true
		}
	}
	return ServerEntry{}, false
}
