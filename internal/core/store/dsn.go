package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/faultlens/faultlens/internal/config"
)

const memoryDSN = ":memory:"

// dsnTarget is a resolved libSQL connection string. local targets are
// files or memory and get the single-writer pragmas.
type dsnTarget struct {
	dsn   string
	local bool
}

// resolveDSN picks the connection string: a remote URL (with the auth
// token folded into its query) wins over a path. Plain paths become
// file: DSNs and their parent directory is created.
func resolveDSN(cfg config.StoreConfig) (dsnTarget, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return dsnTarget{dsn: dsn, local: strings.HasPrefix(dsn, "file:")}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return dsnTarget{}, errors.New("store path or url is required")
	case path == memoryDSN:
		return dsnTarget{dsn: path, local: true}, nil
	case strings.HasPrefix(path, "libsql:"):
		return dsnTarget{dsn: path}, nil
	case strings.HasPrefix(path, "file:"):
		parsed, err := url.Parse(path)
		if err != nil {
			return dsnTarget{}, fmt.Errorf("invalid store path: %w", err)
		}
		local := parsed.Path
		if local == "" {
			local = parsed.Opaque
		}
		if err := ensureParentDir(strings.TrimPrefix(local, "//")); err != nil {
			return dsnTarget{}, err
		}
		return dsnTarget{dsn: path, local: true}, nil
	default:
		if err := ensureParentDir(path); err != nil {
			return dsnTarget{}, err
		}
		return dsnTarget{dsn: "file:" + filepath.Clean(path), local: true}, nil
	}
}

// withAuthToken adds authToken to the URL query unless one is present.
func withAuthToken(raw, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return raw, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") != "" {
		return raw, nil
	}
	query.Set("authToken", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func ensureParentDir(path string) error {
	if path == "" || path == memoryDSN {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
