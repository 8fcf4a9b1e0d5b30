package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"tableflip.dev/taskpad/pkg/entity"
)

// Mirror is the local best-effort copy of the last entity set read from the
// remote store. One JSON blob is kept per (owner, kind) and rewritten
// wholesale; it is never patched.
type Mirror struct {
	d        *diskv.Diskv
	basePath string
}

// OpenMirror creates a Mirror rooted at the configured base path.
func OpenMirror(cfg Config) (*Mirror, error) {
	if cfg == nil {
		var err error
		cfg, err = LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	basePath := cfg.BasePath()
	if basePath == "" {
		return nil, errors.New("store: mirror base path unknown")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure base path: %w", err)
	}
	return &Mirror{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPathTransform,
		InverseTransform:  pathToKeyTransform,
		CacheSizeMax:      1024 * 1024, // 1MB
	}), basePath: basePath}, nil
}

// BasePath returns the directory holding the blobs.
func (m *Mirror) BasePath() string {
	return m.basePath
}

// Save serializes v and replaces the blob for (owner, kind).
func (m *Mirror) Save(owner string, kind entity.Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", kind, err)
	}
	if err := m.d.Write(toKey(owner, kind), data); err != nil {
		return fmt.Errorf("store: write %s: %w", kind, err)
	}
	return nil
}

// Load decodes the blob for (owner, kind) into v. A missing blob reports
// false with no error.
func (m *Mirror) Load(owner string, kind entity.Kind, v any) (bool, error) {
	key := toKey(owner, kind)
	if !m.d.Has(key) {
		return false, nil
	}
	data, err := m.d.Read(key)
	if err != nil {
		return false, fmt.Errorf("store: read %s: %w", kind, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", kind, err)
	}
	return true, nil
}

// Erase drops the blob for (owner, kind).
func (m *Mirror) Erase(owner string, kind entity.Kind) error {
	key := toKey(owner, kind)
	if !m.d.Has(key) {
		return nil
	}
	return m.d.Erase(key)
}

// Owners lists every owner with at least one blob.
func (m *Mirror) Owners() []string {
	seen := map[string]bool{}
	var owners []string
	for key := range m.d.Keys(nil) {
		owner, _, ok := fromKey(key)
		if !ok || seen[owner] {
			continue
		}
		seen[owner] = true
		owners = append(owners, owner)
	}
	return owners
}

func keyToPathTransform(s string) *diskv.PathKey {
	parts := strings.Split(s, "-")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	return fmt.Sprintf("%s-%s", strings.Join(pathKey.Path, "-"), pathKey.FileName)
}

// toKey makes `hex(owner)-kind`. Hex keeps arbitrary owner ids path safe and
// free of the key separator.
func toKey(owner string, kind entity.Kind) string {
	return fmt.Sprintf("%s-%s", toOwner(owner), kind)
}

func fromKey(key string) (string, entity.Kind, bool) {
	i := strings.LastIndex(key, "-")
	if i <= 0 {
		return "", "", false
	}
	owner := fromOwner(key[:i])
	if owner == "" {
		return "", "", false
	}
	return owner, entity.Kind(key[i+1:]), true
}

func toOwner(owner string) string {
	return hex.EncodeToString([]byte(owner))
}

func fromOwner(encoded string) string {
	b, err := hex.DecodeString(encoded)
	if err != nil {
		return ""
	}
	return string(b)
}
