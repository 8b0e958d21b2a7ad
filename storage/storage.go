package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/mohammadanang/video-upload-api/domain"
)

const copyBufferSize = 1 * 1024 * 1024 // 1 MB

// Store persists an upload stream.
type Store interface {
	Save(ctx context.Context, src io.Reader) (domain.SavedFile, error)
	// Path is the overwrite destination, or the directory in versioned mode.
	Path() string
}

// DiskStore writes uploads under a single directory. Every save goes to a
// temp file next to the destination and is renamed into place, so readers
// never observe a partially written file.
type DiskStore struct {
	logger   log.Logger
	dir      string
	filename string
	mode     domain.StoreMode

	now   func() time.Time
	newID func() string
}

func NewDiskStore(logger log.Logger, dir, filename string, mode domain.StoreMode) (*DiskStore, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown store mode %q", mode)
	}
	if filename == "" || filename != filepath.Base(filename) {
		return nil, fmt.Errorf("invalid destination file name %q", filename)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", abs, err)
	}

	return &DiskStore{
		logger:   log.With(logger, "component", "storage"),
		dir:      abs,
		filename: filename,
		mode:     mode,
		now:      time.Now,
		newID:    func() string { return uuid.New().String()[:8] },
	}, nil
}

func (s *DiskStore) Path() string {
	if s.mode == domain.ModeVersioned {
		return s.dir
	}
	return filepath.Join(s.dir, s.filename)
}

func (s *DiskStore) Save(ctx context.Context, src io.Reader) (domain.SavedFile, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*.part")
	if err != nil {
		return domain.SavedFile{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				level.Warn(s.logger).Log("msg", "failed to remove temp file", "path", tmpPath, "err", rmErr)
			}
		}
	}()

	hasher := sha256.New()
	buf := make([]byte, copyBufferSize)
	size, err := io.CopyBuffer(io.MultiWriter(tmp, hasher), src, buf)
	if err != nil {
		return domain.SavedFile{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return domain.SavedFile{}, fmt.Errorf("failed to sync upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.SavedFile{}, fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return domain.SavedFile{}, fmt.Errorf("failed to set upload permissions: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.SavedFile{}, fmt.Errorf("upload aborted: %w", err)
	}

	dst := s.destination()
	if err := os.Rename(tmpPath, dst); err != nil {
		return domain.SavedFile{}, fmt.Errorf("failed to move upload to %s: %w", dst, err)
	}
	committed = true

	saved := domain.SavedFile{
		Path:   dst,
		Size:   size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}
	level.Info(s.logger).Log("msg", "upload saved", "path", saved.Path, "size", saved.Size, "sha256", saved.SHA256)
	return saved, nil
}

// destination picks the final path for a save. Versioned names follow the
// recorder's YYYY-MM-DD_HH-MM-SS_VID pattern plus a short id against
// same-second collisions.
func (s *DiskStore) destination() string {
	if s.mode == domain.ModeOverwrite {
		return filepath.Join(s.dir, s.filename)
	}
	ext := filepath.Ext(s.filename)
	stamp := s.now().Format("2006-01-02_15-04-05")
	return filepath.Join(s.dir, fmt.Sprintf("%s_VID-%s%s", stamp, strings.ToLower(s.newID()), ext))
}
