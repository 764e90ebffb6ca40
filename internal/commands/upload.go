package commands

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"immich-service/internal/client"
	"immich-service/models"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

const uploadDeviceID = "CLI"

// mediaExtensions are the file types the server accepts
var mediaExtensions = map[string]bool{
	".3fr": true, ".ari": true, ".arw": true, ".avif": true, ".bmp": true, ".cap": true,
	".cin": true, ".cr2": true, ".cr3": true, ".crw": true, ".dcr": true, ".dng": true,
	".erf": true, ".fff": true, ".gif": true, ".heic": true, ".heif": true, ".iiq": true,
	".insp": true, ".jpeg": true, ".jpg": true, ".jxl": true, ".k25": true, ".kdc": true,
	".mrw": true, ".nef": true, ".orf": true, ".ori": true, ".pef": true, ".png": true,
	".psd": true, ".raf": true, ".raw": true, ".rw2": true, ".rwl": true, ".sr2": true,
	".srf": true, ".srw": true, ".tif": true, ".tiff": true, ".webp": true, ".x3f": true,
	".3gp": true, ".avi": true, ".flv": true, ".insv": true, ".m2ts": true, ".m4v": true,
	".mkv": true, ".mov": true, ".mp4": true, ".mpg": true, ".mts": true, ".webm": true,
	".wmv": true,
}

// UploadOptions are the parsed upload flags
type UploadOptions struct {
	Recursive       bool
	ExcludePatterns []string
	SkipHash        bool
	DryRun          bool
	Delete          bool
}

// Upload sends local photos and videos to the server
type Upload struct {
	deps Deps
}

func NewUpload(deps Deps) *Upload {
	return &Upload{deps: deps.withDefaults()}
}

type localFile struct {
	path     string
	checksum string
}

func (c *Upload) Run(ctx context.Context, paths []string, opts UploadOptions) error {
	if len(paths) == 0 {
		c.deps.printf("No paths specified\n")
		return nil
	}

	for _, pattern := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	api, _, err := c.deps.connect()
	if err != nil {
		return err
	}

	files, err := crawl(paths, opts)
	if err != nil {
		return err
	}
	c.deps.printf("Found %d files\n", len(files))
	if len(files) == 0 {
		return nil
	}

	toUpload, duplicates, err := c.partition(ctx, api, files, opts.SkipHash)
	if err != nil {
		return err
	}
	c.deps.printf("%d new, %d already on the server\n", len(toUpload), len(duplicates))

	if opts.DryRun {
		for _, f := range toUpload {
			c.deps.printf("Would upload %s\n", f.path)
		}
		if opts.Delete {
			c.deps.printf("Would delete %d local files\n", len(toUpload)+len(duplicates))
		}
		return nil
	}

	var failures []error
	uploaded := make([]localFile, 0, len(toUpload))
	for _, f := range toUpload {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.uploadOne(ctx, api, f.path)
		if err != nil {
			c.deps.Logger.Error("Upload failed", zap.String("path", f.path), zap.Error(err))
			failures = append(failures, err)
			continue
		}
		c.deps.Logger.Debug("Uploaded", zap.String("path", f.path), zap.String("asset_id", resp.ID), zap.Bool("duplicate", resp.Duplicate))
		uploaded = append(uploaded, f)
	}
	c.deps.printf("Uploaded %d files\n", len(uploaded))

	if opts.Delete {
		deleted := 0
		for _, f := range append(uploaded, duplicates...) {
			if err := os.Remove(f.path); err != nil {
				c.deps.Logger.Error("Delete failed", zap.String("path", f.path), zap.Error(err))
				failures = append(failures, fmt.Errorf("delete %s: %w", f.path, err))
				continue
			}
			deleted++
		}
		c.deps.printf("Deleted %d local files\n", deleted)
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d files failed: %w", len(failures), len(files), errors.Join(failures...))
	}
	return nil
}

// partition splits files into those the server still needs and those it already has
func (c *Upload) partition(ctx context.Context, api API, files []string, skipHash bool) ([]localFile, []localFile, error) {
	if skipHash {
		out := make([]localFile, 0, len(files))
		for _, path := range files {
			out = append(out, localFile{path: path})
		}
		return out, nil, nil
	}

	byPath := make(map[string]localFile, len(files))
	items := make([]models.AssetBulkUploadCheckItem, 0, len(files))
	for _, path := range files {
		sum, err := sha1File(path)
		if err != nil {
			return nil, nil, err
		}
		byPath[path] = localFile{path: path, checksum: sum}
		items = append(items, models.AssetBulkUploadCheckItem{ID: path, Checksum: sum})
	}

	results, err := api.BulkUploadCheck(ctx, items)
	if err != nil {
		return nil, nil, err
	}

	rejected := make(map[string]bool, len(results))
	for _, result := range results {
		if result.Action == models.UploadActionReject {
			rejected[result.ID] = true
		}
	}

	// files the server left out of its answer are uploaded; the upload itself dedupes
	var toUpload, duplicates []localFile
	for _, path := range files {
		if rejected[path] {
			duplicates = append(duplicates, byPath[path])
			continue
		}
		toUpload = append(toUpload, byPath[path])
	}
	return toUpload, duplicates, nil
}

func (c *Upload) uploadOne(ctx context.Context, api API, path string) (*models.AssetFileUploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	return api.UploadAsset(ctx, client.AssetUpload{
		FileName:       name,
		Content:        file,
		DeviceAssetID:  deviceAssetID(name, info.Size()),
		DeviceID:       uploadDeviceID,
		FileCreatedAt:  info.ModTime(),
		FileModifiedAt: info.ModTime(),
	})
}

func deviceAssetID(name string, size int64) string {
	return strings.ReplaceAll(fmt.Sprintf("%s-%d", name, size), " ", "")
}

func sha1File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha1.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// crawl expands paths into media files. Directories are only descended into
// with Recursive; without it just their direct children are considered.
func crawl(paths []string, opts UploadOptions) ([]string, error) {
	seen := map[string]bool{}
	var files []string

	add := func(path, rel string) {
		if seen[path] || !isMedia(path) || excluded(opts.ExcludePatterns, path, rel) {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	for _, root := range paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", root, err)
		}
		if !info.IsDir() {
			add(abs, root)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(abs, path)
			if d.IsDir() {
				if path == abs {
					return nil
				}
				if !opts.Recursive || excluded(opts.ExcludePatterns, path, rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(path, rel)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

func isMedia(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// excluded matches the absolute path and the path relative to its crawl root
// against each pattern. Patterns without a separator also match the base
// name, so "-i '*.png'" works anywhere in the tree.
func excluded(patterns []string, abs, rel string) bool {
	base := filepath.Base(abs)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		candidates := []string{filepath.ToSlash(abs), filepath.ToSlash(rel)}
		if !strings.Contains(pattern, "/") {
			candidates = append(candidates, base)
		}
		for _, name := range candidates {
			if ok, _ := doublestar.Match(pattern, name); ok {
				return true
			}
		}
	}
	return false
}
