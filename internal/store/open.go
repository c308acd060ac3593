package store

import (
	"context"
	"fmt"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

// Open returns the store implementation named by kind.
func Open(ctx context.Context, kind, path string, log logging.Logger) (Store, error) {
	switch kind {
	case "", KindJSON:
		return NewJSONStore(path, log), nil
	case KindSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
