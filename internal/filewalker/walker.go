// Package filewalker discovers the set of files a project root should have
// indexed: code files under the size ceiling, outside excluded directories,
// with symlinks resolved to real files but never followed into a cycle.
package filewalker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/codelens/indexcore/internal/filetypes"
)

// Options controls a single walk. Zero value uses MaxFileSize from
// filetypes.MaxIndexableFileSize.
type Options struct {
	// MaxFileSize is the byte ceiling above which a file is skipped.
	// Zero means filetypes.MaxIndexableFileSize.
	MaxFileSize int64
}

// File describes one discovered, indexable file.
type File struct {
	// RelPath is the project-relative path, always using forward slashes.
	RelPath string
	// AbsPath is the resolved absolute path (symlink targets resolved).
	AbsPath string
	Size    int64
}

// Walk discovers indexable files under root and returns them sorted by
// RelPath, ascending. Directories matching filetypes.ShouldSkipDirectory are
// pruned entirely. Symlinks to regular files are followed; symlinks to
// directories, broken symlinks, and symlink cycles are skipped rather than
// erroring the whole walk.
func Walk(root string, opts Options) ([]File, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = filetypes.MaxIndexableFileSize
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var files []File

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entry (permissions, race with deletion); skip it
			// without aborting the rest of the walk.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != absRoot && d.IsDir() {
			if filetypes.ShouldSkipDirectory(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, ok := resolveSymlink(path)
			if !ok {
				return nil // broken link or cycle
			}
			info, err := os.Stat(resolved)
			if err != nil || info.IsDir() {
				return nil
			}
			return considerFile(&files, absRoot, path, resolved, info, opts)
		}

		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			return considerFile(&files, absRoot, path, path, info, opts)
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func considerFile(files *[]File, absRoot, logicalPath, realPath string, info fs.FileInfo, opts Options) error {
	if !filetypes.IsCodeFile(realPath) {
		return nil
	}
	if info.Size() > opts.MaxFileSize {
		return nil
	}

	relPath, err := filepath.Rel(absRoot, logicalPath)
	if err != nil {
		relPath = logicalPath
	}

	*files = append(*files, File{
		RelPath: filepath.ToSlash(relPath),
		AbsPath: realPath,
		Size:    info.Size(),
	})
	return nil
}

// resolveSymlink follows a symlink to its ultimate target, bounding the
// chase to guard against cycles that never resolve.
func resolveSymlink(path string) (string, bool) {
	const maxHops = 40
	current := path
	for i := 0; i < maxHops; i++ {
		target, err := os.Readlink(current)
		if err != nil {
			return "", false
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		info, err := os.Lstat(target)
		if err != nil {
			return "", false
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return target, true
		}
		current = target
	}
	return "", false // too many hops, treat as a cycle
}
