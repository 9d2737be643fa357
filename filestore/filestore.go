// Package filestore keeps availability state in two JSON files: the data
// record (user → entry) and the config record (panel reference). Both are
// pretty-printed and rewritten in full through a temp file + rename, so a
// crash mid-write leaves the previous version in place.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/endervision20/availability-bot/availability"
)

const indent = "    "

// DataFile is the data record. It implements availability.Persister.
type DataFile struct {
	Path string
}

// fileEntry accepts both the current field names and the ones written by
// earlier versions of the bot ("game", "expires").
type fileEntry struct {
	Activity  *string `json:"activity,omitempty"`
	ExpiresAt *int64  `json:"expiresAt,omitempty"`
	Game      *string `json:"game,omitempty"`
	Expires   *int64  `json:"expires,omitempty"`
}

func (fe fileEntry) entry() availability.Entry {
	var e availability.Entry
	switch {
	case fe.Activity != nil:
		e.Activity = *fe.Activity
	case fe.Game != nil:
		e.Activity = *fe.Game
	}
	switch {
	case fe.ExpiresAt != nil:
		e.ExpiresAt = *fe.ExpiresAt
	case fe.Expires != nil:
		e.ExpiresAt = *fe.Expires
	}
	return e
}

// Load reads the data record. A missing file is created as an empty object;
// an unparsable one is treated as empty and left for the next Save to
// overwrite.
func (d *DataFile) Load(ctx context.Context) (map[string]availability.Entry, error) {
	b, err := os.ReadFile(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := map[string]availability.Entry{}
		if err := d.Save(ctx, empty); err != nil {
			return nil, fmt.Errorf("create data file: %w", err)
		}
		slog.Info("created empty data file", slog.String("path", d.Path), slog.String("component", "filestore"))
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}

	var raw map[string]fileEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		slog.Warn("data file unreadable, starting empty", slog.String("path", d.Path), slog.Any("err", err), slog.String("component", "filestore"))
		return map[string]availability.Entry{}, nil
	}
	out := make(map[string]availability.Entry, len(raw))
	for id, fe := range raw {
		if id == "" {
			continue
		}
		out[id] = fe.entry()
	}
	return out, nil
}

// Save rewrites the whole data record.
func (d *DataFile) Save(_ context.Context, entries map[string]availability.Entry) error {
	if entries == nil {
		entries = map[string]availability.Entry{}
	}
	b, err := json.MarshalIndent(entries, "", indent)
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}
	return writeFileAtomic(d.Path, b)
}

// ConfigFile is the config record. It implements availability.RefStore.
type ConfigFile struct {
	Path string
}

// LoadRef reads the panel reference. Missing or unparsable files yield an
// empty reference; absent fields default to "".
func (c *ConfigFile) LoadRef(_ context.Context) (availability.PanelRef, error) {
	b, err := os.ReadFile(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return availability.PanelRef{}, nil
	}
	if err != nil {
		return availability.PanelRef{}, fmt.Errorf("read config file: %w", err)
	}
	var ref availability.PanelRef
	if err := json.Unmarshal(b, &ref); err != nil {
		slog.Warn("config file unreadable, ignoring", slog.String("path", c.Path), slog.Any("err", err), slog.String("component", "filestore"))
		return availability.PanelRef{}, nil
	}
	return ref, nil
}

// SaveRef rewrites the config record.
func (c *ConfigFile) SaveRef(_ context.Context, ref availability.PanelRef) error {
	b, err := json.MarshalIndent(ref, "", indent)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}
	return writeFileAtomic(c.Path, b)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
