package attachments

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"servicedesk/internal/store"

	"github.com/google/uuid"
)

const (
	KindJournal  = "journal"
	KindEvidence = "evidence"

	megabyte = 1 << 20
)

var ErrOutsideRoot = errors.New("attachment path outside upload dir")

type Policy struct {
	MaxSize   int64
	MimeTypes []string
}

var policies = map[string]Policy{
	KindJournal: {
		MaxSize:   10 * megabyte,
		MimeTypes: []string{"application/pdf", "image/jpeg", "image/png"},
	},
	KindEvidence: {
		MaxSize:   50 * megabyte,
		MimeTypes: []string{"image/jpeg", "image/png", "video/mp4", "video/x-msvideo"},
	},
}

var mimeAliases = map[string]string{
	"image/jpg":     "image/jpeg",
	"image/pjpeg":   "image/jpeg",
	"video/avi":     "video/x-msvideo",
	"video/msvideo": "video/x-msvideo",
}

func PolicyFor(kind string) (Policy, bool) {
	policy, ok := policies[strings.ToLower(strings.TrimSpace(kind))]
	return policy, ok
}

// NormalizeMimeType strips parameters and folds common aliases.
func NormalizeMimeType(mimeType string) string {
	value := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if alias, ok := mimeAliases[value]; ok {
		return alias
	}
	return value
}

// Validate checks an upload against the allow-list of its kind.
func Validate(kind, mimeType string, size int64) error {
	policy, ok := PolicyFor(kind)
	if !ok {
		return store.ValidationError{Message: "type must be journal or evidence"}
	}
	if size <= 0 {
		return store.ValidationError{Message: "file is empty"}
	}
	if size > policy.MaxSize {
		return store.ValidationError{Message: fmt.Sprintf("file exceeds %d MB limit", policy.MaxSize/megabyte)}
	}
	mimeType = NormalizeMimeType(mimeType)
	for _, allowed := range policy.MimeTypes {
		if allowed == mimeType {
			return nil
		}
	}
	return store.ValidationError{Message: fmt.Sprintf("file type %s not allowed for %s", mimeType, kind)}
}

type Stored struct {
	Filename string
	Path     string
	Size     int64
}

// Storage keeps uploaded files on local disk below a root directory.
type Storage struct {
	root string
}

func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

func (s *Storage) Save(claimID, originalName string, r io.Reader, maxSize int64) (Stored, error) {
	if _, err := uuid.Parse(claimID); err != nil {
		return Stored{}, store.ErrClaimNotFound
	}
	dir := filepath.Join(s.root, "claims", claimID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create upload dir: %w", err)
	}
	filename := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create upload file: %w", err)
	}
	size, err := io.Copy(file, io.LimitReader(r, maxSize+1))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size > maxSize {
		err = store.ValidationError{Message: fmt.Sprintf("file exceeds %d MB limit", maxSize/megabyte)}
	}
	if err != nil {
		_ = os.Remove(path)
		return Stored{}, err
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return Stored{}, err
	}
	return Stored{Filename: filename, Path: filepath.ToSlash(rel), Size: size}, nil
}

// Open resolves a stored relative path, refusing anything outside the root.
func (s *Storage) Open(path string) (*os.File, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *Storage) Remove(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *Storage) resolve(path string) (string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	full, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(path)))
	if err != nil {
		return "", err
	}
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}
