package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/go-go-golems/teammate/pkg/session"
)

// OpenStore opens the session store described by s.
func OpenStore(s StoreSettings) (session.Store, error) {
	switch s.Kind {
	case StoreMemory:
		return session.NewInMemoryStore(), nil

	case StoreFile:
		return session.NewYAMLFileStore(s.Path)

	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "could not create store directory")
		}
		dsn, err := session.SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		return session.NewSQLiteStore(dsn)

	default:
		return nil, errors.Wrapf(session.ErrUnknownStore, "%q", s.Kind)
	}
}
