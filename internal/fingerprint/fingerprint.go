// Package fingerprint computes content-derived digests over project trees.
// Fingerprint equality implies the indexable inputs are unchanged for
// caching purposes: any change in file set, size, or mtime of an indexable
// file changes the project fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// Well-known project subtrees.
const (
	ProceduresDir = "Procedures"
	ContextDir    = "Context"
	PromptDir     = "Prompt"
)

// TreeOptions controls which files a tree walk sees.
type TreeOptions struct {
	// ExcludeChildren are directory names skipped when they appear as an
	// immediate child of the walk root. Deeper directories with the same
	// name are not skipped.
	ExcludeChildren []string

	// ExcludePatterns are doublestar patterns matched against the
	// slash-separated path relative to the walk root.
	ExcludePatterns []string
}

// File combines the absolute path, byte size, and modification time in
// nanoseconds of one file into a stable digest.
func File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", pherrors.IOError(fmt.Sprintf("stat %s", path), err)
	}
	return fileDigest(path, info), nil
}

// fileDigest hashes the identity triple of an already-stat'ed file.
func fileDigest(absPath string, info fs.FileInfo) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", absPath, info.Size(), info.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}

// Tree walks root recursively, skipping excluded paths, sorts files by
// relative path in byte order, and hashes the concatenated per-file digests.
// An empty tree yields a defined digest; a missing root is an error.
func Tree(root string, opts TreeOptions) (string, error) {
	files, err := TreeFiles(root, opts)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, f := range files {
		abs := filepath.Join(root, filepath.FromSlash(f))
		info, err := os.Stat(abs)
		if err != nil {
			// File vanished between walk and stat; reflect its absence.
			fmt.Fprintf(h, "%s|gone\n", f)
			continue
		}
		fmt.Fprintf(h, "%s|%s\n", f, fileDigest(abs, info))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// TreeFiles returns the slash-separated relative paths of all regular files
// under root, after exclusions, sorted in byte order. This is the single
// enumeration used by both fingerprinting and index building, so the two can
// never disagree about the file set.
func TreeFiles(root string, opts TreeOptions) ([]string, error) {
	if info, err := os.Stat(root); err != nil {
		return nil, pherrors.New(pherrors.ErrCodeDirNotFound,
			fmt.Sprintf("required directory missing: %s", root), err)
	} else if !info.IsDir() {
		return nil, pherrors.New(pherrors.ErrCodeInvalidPath,
			fmt.Sprintf("not a directory: %s", root), nil)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return pherrors.New(pherrors.ErrCodeWalkFailed,
				fmt.Sprintf("walk %s", path), err)
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if isImmediateChild(rel) && contains(opts.ExcludeChildren, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks and other irregular files.
		if !d.Type().IsRegular() {
			return nil
		}

		for _, pattern := range opts.ExcludePatterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Project combines the primary-context file digest with the digests of the
// Procedures tree and the Context tree (excluding the immediate Prompt
// child). A project with an empty subtree is legal; a missing subtree is not.
func Project(projectRoot, primaryContextPath string, excludePatterns []string) (string, error) {
	proceduresFP, err := Tree(filepath.Join(projectRoot, ProceduresDir), TreeOptions{
		ExcludePatterns: excludePatterns,
	})
	if err != nil {
		return "", err
	}

	contextFP, err := Tree(filepath.Join(projectRoot, ContextDir), TreeOptions{
		ExcludeChildren: []string{PromptDir},
		ExcludePatterns: excludePatterns,
	})
	if err != nil {
		return "", err
	}

	// A missing primary context document is allowed; its absence is part of
	// the fingerprint so creating it later invalidates the cache.
	primaryFP := "absent"
	if primaryContextPath != "" {
		if fp, err := File(primaryContextPath); err == nil {
			primaryFP = fp
		}
	}

	h := sha256.New()
	fmt.Fprintf(h, "primary:%s\nprocedures:%s\ncontext:%s", primaryFP, proceduresFP, contextFP)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isImmediateChild reports whether a relative slash path has a single element.
func isImmediateChild(rel string) bool {
	return !strings.Contains(rel, "/")
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
