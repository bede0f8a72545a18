// Package security checks files that hold key material before they are read.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrInvalidPath   = errors.New("invalid file path")
	ErrNotRegular    = errors.New("not a regular file")
)

// CheckSecretFile validates that path names an existing regular file without
// parent-directory segments and returns its file info.
func CheckSecretFile(path string) (os.FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidPath
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return nil, fmt.Errorf("%w: %s", ErrPathTraversal, path)
		}
	}

	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	return info, nil
}

// WorldReadable reports whether users outside the owner's group can read the file.
func WorldReadable(info os.FileInfo) bool {
	return info != nil && info.Mode().Perm()&0o004 != 0
}
