// Package source provides a directory-backed image library and a watcher for new images.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// DefaultExtensions lists the image file extensions scanned when none are configured.
//
//nolint:gochecknoglobals // Static default
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Directory is an image library rooted at a directory. First-level
// subdirectories are groups; item IDs are slash-separated paths relative to
// the root.
type Directory struct {
	logger     *slog.Logger
	extensions map[string]bool
	root       string
}

// NewDirectory creates a library over root. Extensions are matched case-insensitively.
func NewDirectory(root string, extensions []string, logger *slog.Logger) *Directory {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	return &Directory{root: filepath.Clean(root), extensions: exts, logger: logger}
}

// Root returns the library directory.
func (d *Directory) Root() string {
	return d.root
}

// IsImage reports whether path has one of the configured extensions.
func (d *Directory) IsImage(path string) bool {
	return d.extensions[strings.ToLower(filepath.Ext(path))]
}

// RequestAccess checks that the root exists and can be listed.
func (d *Directory) RequestAccess(_ context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrPermissionDenied, d.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", common.ErrPermissionDenied, d.root)
	}

	f, err := os.Open(d.root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrPermissionDenied, d.root, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", common.ErrPermissionDenied, d.root, err)
	}
	return nil
}

// Groups returns the first-level subdirectory names, sorted.
func (d *Directory) Groups(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read library: %w", err)
	}

	var groups []string
	for _, entry := range entries {
		if entry.IsDir() && !isHidden(entry.Name()) {
			groups = append(groups, entry.Name())
		}
	}
	return groups, nil
}

// ListItems walks the library, or only one group when group is not empty,
// and returns image items newest first.
func (d *Directory) ListItems(ctx context.Context, group string) ([]model.ImageItem, error) {
	start := d.root
	if group != "" {
		if !fs.ValidPath(group) || strings.Contains(group, "/") {
			return nil, fmt.Errorf("invalid group %q", group)
		}
		start = filepath.Join(d.root, group)
	}

	var items []model.ImageItem
	err := filepath.WalkDir(start, func(path string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == start {
				return walkErr
			}
			d.logger.Warn("failed to access path", "path", path, "error", walkErr)
			return nil
		}
		if entry.IsDir() {
			if path != start && isHidden(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(entry.Name()) || !d.IsImage(path) {
			return nil
		}

		item, err := d.itemFor(path)
		if err != nil {
			d.logger.Warn("failed to stat image", "path", path, "error", err)
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	slices.SortStableFunc(items, func(a, b model.ImageItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return items, nil
}

// Item returns the library item at path, which must be inside the root.
func (d *Directory) Item(path string) (model.ImageItem, error) {
	return d.itemFor(path)
}

func (d *Directory) itemFor(path string) (model.ImageItem, error) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return model.ImageItem{}, fmt.Errorf("%s is outside %s", path, d.root)
	}

	info, err := os.Stat(path)
	if err != nil {
		return model.ImageItem{}, err
	}

	id := filepath.ToSlash(rel)
	group := ""
	if i := strings.IndexByte(id, '/'); i > 0 {
		group = id[:i]
	}

	return model.ImageItem{
		ID:        id,
		Path:      path,
		Group:     group,
		CreatedAt: info.ModTime(),
	}, nil
}

// Decode loads the pixels of an item.
func (d *Directory) Decode(ctx context.Context, item model.ImageItem) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := d.pathFor(item)
	// #nosec G304 - path is inside the library root
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDecode, item.ID, err)
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDecode, item.ID, err)
	}

	d.logger.Debug("decoded image", "item", item.ID, "format", format, "bounds", img.Bounds())
	return img, nil
}

// Delete removes the image files of items. Files that are already gone are ignored.
// Only regular image files under the root are removed.
func (d *Directory) Delete(_ context.Context, items []model.ImageItem) error {
	var errs []error
	for _, item := range items {
		if err := d.deleteFile(d.pathFor(item)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrDelete, errors.Join(errs...))
	}
	return nil
}

func (d *Directory) deleteFile(path string) error {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return fmt.Errorf("%s is outside the library", path)
	}
	if !d.IsImage(path) {
		return fmt.Errorf("%s is not a supported image", rel)
	}

	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", rel)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Import copies files into the library, under group when it is not empty,
// and returns the new items. Existing files with the same name are not replaced.
func (d *Directory) Import(_ context.Context, paths []string, group string) ([]model.ImageItem, error) {
	dstDir := d.root
	if group != "" {
		if !fs.ValidPath(group) || strings.Contains(group, "/") {
			return nil, fmt.Errorf("invalid group %q", group)
		}
		dstDir = filepath.Join(d.root, group)
	}
	if err := os.MkdirAll(dstDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create group directory: %w", err)
	}

	var items []model.ImageItem
	for _, src := range paths {
		if !d.IsImage(src) {
			return items, fmt.Errorf("%s is not a supported image", src)
		}
		dst := filepath.Join(dstDir, filepath.Base(src))
		if _, err := os.Stat(dst); err == nil {
			return items, fmt.Errorf("%s already exists in the library", filepath.Base(src))
		}
		if err := common.CopyFile(src, dst); err != nil {
			return items, fmt.Errorf("failed to import %s: %w", src, err)
		}
		item, err := d.itemFor(dst)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// pathFor resolves an item to a file, preferring the ID so stale paths cannot escape the root.
func (d *Directory) pathFor(item model.ImageItem) string {
	if item.ID != "" && fs.ValidPath(item.ID) {
		return filepath.Join(d.root, filepath.FromSlash(item.ID))
	}
	return item.Path
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
