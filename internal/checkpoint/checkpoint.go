package checkpoint

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"samplepipe/internal/sample"
)

// Checkpoint fingerprints one label of a runner context.
type Checkpoint struct {
	store   *Store
	label   string
	samples *sample.Samples
	workdir string
	config  any
}

// Checkpoint returns the checkpoint for label over samples. workdir and cfg
// are used to resolve output patterns.
func (s *Store) Checkpoint(label string, samples *sample.Samples, workdir string, cfg any) *Checkpoint {
	if label == "" {
		label = sample.DefaultCheckpoint
	}
	return &Checkpoint{store: s, label: label, samples: samples, workdir: workdir, config: cfg}
}

// Label returns the checkpoint label.
func (c *Checkpoint) Label() string { return c.label }

// Store records the current fingerprint. extra values are folded into the
// fingerprint and must be passed again to Check.
func (c *Checkpoint) Store(ctx context.Context, extra ...any) error {
	digests, err := c.digests(extra)
	if err != nil {
		return err
	}
	return c.store.save(ctx, c.label, digests, time.Now().UTC().Format(time.RFC3339Nano))
}

// Check reports whether a stored fingerprint exists and matches the
// current files.
func (c *Checkpoint) Check(ctx context.Context, extra ...any) (bool, error) {
	stored, err := c.store.load(ctx, c.label)
	if err != nil {
		return false, err
	}
	if len(stored) == 0 {
		return false, nil
	}
	current, err := c.digests(extra)
	if err != nil {
		return false, err
	}
	return maps.Equal(stored, current), nil
}

// Digest combines the per-file fingerprints into one hex string.
func (c *Checkpoint) Digest(extra ...any) (string, error) {
	digests, err := c.digests(extra)
	if err != nil {
		return "", err
	}
	combined := xxhash.New()
	for _, path := range slices.Sorted(maps.Keys(digests)) {
		_, _ = combined.WriteString(path)
		_, _ = combined.WriteString(digests[path])
	}
	return strconv.FormatUint(combined.Sum64(), 16), nil
}

func (c *Checkpoint) digests(extra []any) (map[string]string, error) {
	base, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint arguments: %w", err)
	}
	paths, err := c.paths()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(paths))
	var buf [8]byte
	for _, path := range paths {
		h := xxhash.New()
		_, _ = h.Write(base)
		_, _ = h.WriteString(c.label)
		_, _ = h.WriteString(filepath.Base(path))
		if info, err := os.Stat(path); err == nil {
			binary.BigEndian.PutUint64(buf[:], uint64(info.Size()))
			_, _ = h.Write(buf[:])
			binary.BigEndian.PutUint64(buf[:], uint64(info.ModTime().Unix()))
			_, _ = h.Write(buf[:])
		} else {
			_, _ = h.WriteString("missing")
		}
		out[path] = strconv.FormatUint(h.Sum64(), 16)
	}
	return out, nil
}

// paths collects sample files and this label's outputs, expanding
// directories into the files below them.
func (c *Checkpoint) paths() ([]string, error) {
	set := make(map[string]struct{})
	for _, item := range c.samples.Items {
		for _, file := range item.Files {
			set[file] = struct{}{}
		}
	}
	for _, out := range c.samples.Outputs {
		if out.Checkpoint == c.label {
			set[out.Src] = struct{}{}
		}
	}
	for _, glob := range c.samples.Globs {
		if glob.Checkpoint != c.label {
			continue
		}
		outputs, _, err := glob.Resolve(c.samples, c.workdir, "", c.config)
		if err != nil {
			return nil, fmt.Errorf("resolve checkpoint outputs: %w", err)
		}
		for _, out := range outputs {
			set[out.Src] = struct{}{}
		}
	}

	var out []string
	for path := range set {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			out = append(out, path)
			continue
		}
		_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				out = append(out, p)
			}
			return nil
		})
	}
	slices.Sort(out)
	return out, nil
}
