package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/mohammadanang/video-upload-api/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	after []byte
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.after) > 0 {
		n := copy(p, r.after)
		r.after = r.after[n:]
		return n, nil
	}
	return 0, errors.New("connection reset")
}

func newTestStore(t *testing.T, mode domain.StoreMode) (*DiskStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewDiskStore(log.NewNopLogger(), dir, "uploaded_video.mp4", mode)
	require.NoError(t, err)
	return s, dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveRoundTrip(t *testing.T) {
	s, dir := newTestStore(t, domain.ModeOverwrite)
	payload := []byte("\x00\x00\x00\x18ftypmp42 not really a video")

	saved, err := s.Save(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)

	sum := sha256.Sum256(payload)
	assert.Equal(t, filepath.Join(dir, "uploaded_video.mp4"), saved.Path)
	assert.Equal(t, int64(len(payload)), saved.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), saved.SHA256)

	got, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	info, err := os.Stat(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestSaveOverwritesPreviousUpload(t *testing.T) {
	s, dir := newTestStore(t, domain.ModeOverwrite)

	_, err := s.Save(context.Background(), strings.NewReader("first upload, longer than the second"))
	require.NoError(t, err)
	_, err = s.Save(context.Background(), strings.NewReader("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, []string{"uploaded_video.mp4"}, dirEntries(t, dir))
}

func TestSaveEmptyUpload(t *testing.T) {
	s, _ := newTestStore(t, domain.ModeOverwrite)

	saved, err := s.Save(context.Background(), bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, saved.Size)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSaveFailureLeavesDestinationUntouched(t *testing.T) {
	s, dir := newTestStore(t, domain.ModeOverwrite)
	_, err := s.Save(context.Background(), strings.NewReader("good"))
	require.NoError(t, err)

	_, err = s.Save(context.Background(), &failingReader{after: []byte("partial")})
	require.Error(t, err)

	got, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "good", string(got))
	assert.Equal(t, []string{"uploaded_video.mp4"}, dirEntries(t, dir))
}

func TestSaveCancelledContext(t *testing.T) {
	s, dir := newTestStore(t, domain.ModeOverwrite)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, strings.NewReader("late"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirEntries(t, dir))
}

func TestSaveVersioned(t *testing.T) {
	s, dir := newTestStore(t, domain.ModeVersioned)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC) }
	ids := []string{"AAAA1111", "bbbb2222"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := s.Save(context.Background(), strings.NewReader("one"))
	require.NoError(t, err)
	second, err := s.Save(context.Background(), strings.NewReader("two"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2024-03-09_07-05-01_VID-aaaa1111.mp4"), first.Path)
	assert.Equal(t, filepath.Join(dir, "2024-03-09_07-05-01_VID-bbbb2222.mp4"), second.Path)
	assert.Equal(t, dir, s.Path())
	assert.Len(t, dirEntries(t, dir), 2)

	got, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}

func TestConcurrentSavesLastWriterWins(t *testing.T) {
	s, dir := newTestStore(t, domain.ModeOverwrite)
	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 256*1024)
	}

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			_, err := s.Save(context.Background(), bytes.NewReader(p))
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	got, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, payloads, got)
	assert.Equal(t, []string{"uploaded_video.mp4"}, dirEntries(t, dir))
}

func TestNewDiskStoreValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDiskStore(log.NewNopLogger(), dir, "video.mp4", domain.StoreMode("append"))
	assert.Error(t, err)

	_, err = NewDiskStore(log.NewNopLogger(), dir, "nested/video.mp4", domain.ModeOverwrite)
	assert.Error(t, err)

	_, err = NewDiskStore(log.NewNopLogger(), dir, "", domain.ModeOverwrite)
	assert.Error(t, err)

	nested := filepath.Join(dir, "a", "b")
	s, err := NewDiskStore(log.NewNopLogger(), nested, "video.mp4", domain.ModeOverwrite)
	require.NoError(t, err)
	assert.DirExists(t, nested)
	assert.Equal(t, filepath.Join(nested, "video.mp4"), s.Path())
}
