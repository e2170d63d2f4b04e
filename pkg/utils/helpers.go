package utils

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//InSlice returns true if given string appears in given slice
func InSlice(lookingFor string, slice []string) bool {
	for _, s := range slice {
		if s == lookingFor {
			return true
		}
	}

	return false
}

//ContainsKeyword returns true if given string contains any of given keywords, case insensitive
func ContainsKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return false
}

//ListDir returns a list of files/ directories in given path
func ListDir(path string) ([]string, error) {
	names := make([]string, 0)
	if files, err := os.ReadDir(path); err != nil {
		return nil, fmt.Errorf("ListDir: Error, got '%v'", err)
	} else {
		for _, f := range files {
			names = append(names, f.Name())
		}
	}

	return names, nil
}

//ListSubdirs returns a sorted list of immediate subdirectory names in given path
func ListSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ListSubdirs: Error, got '%v'", err)
	}

	names := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

//hasExtension returns true if given filename ends with one of given extensions (case insensitive)
func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return InSlice(ext, extensions)
}

//VideoFiles returns a sorted list of video file paths under given directory.
//If recursive is true it walks subdirectories too (trimmed clips live in per-video folders)
func VideoFiles(dir string, recursive bool) ([]string, error) {
	return filesByExtension(dir, VideoExtensions, recursive)
}

//ImageFiles returns a sorted list of image file paths in given directory (non recursive)
func ImageFiles(dir string) ([]string, error) {
	return filesByExtension(dir, ImageExtensions, false)
}

//ImageFilesRecursive returns a sorted list of image file paths under given directory tree
func ImageFilesRecursive(dir string) ([]string, error) {
	return filesByExtension(dir, ImageExtensions, true)
}

func filesByExtension(dir string, extensions []string, recursive bool) ([]string, error) {
	found := make([]string, 0)

	if recursive {
		err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && hasExtension(d.Name(), extensions) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("filesByExtension: Error walking '%s', got '%v'", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("filesByExtension: Error reading '%s', got '%v'", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && hasExtension(e.Name(), extensions) {
				found = append(found, path.Join(dir, e.Name()))
			}
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return strings.ToLower(found[i]) < strings.ToLower(found[j])
	})
	return found, nil
}

//EnsureDir creates given directory (and parents) if it does not exist yet
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0766); err != nil {
		return fmt.Errorf("EnsureDir: Error creating '%s', got '%v'", dir, err)
	}
	return nil
}

//CopyFile copies src file to dst path, creating dst's directory if needed
func CopyFile(src, dst string) error {
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("CopyFile: Error opening '%s', got '%v'", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("CopyFile: Error creating '%s', got '%v'", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("CopyFile: Error copying '%s' to '%s', got '%v'", src, dst, err)
	}

	return nil
}

//SafeMove moves src file into dstDir without overwriting: on name collision it
//appends _1, _2, ... before the extension. Returns the final destination path
func SafeMove(src, dstDir string) (string, error) {
	if err := EnsureDir(dstDir); err != nil {
		return "", err
	}

	base := filepath.Base(src)
	dst := path.Join(dstDir, base)
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return dst, renameOrCopy(src, dst)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := path.Join(dstDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, renameOrCopy(src, candidate)
		}
	}
}

//renameOrCopy renames src to dst, falling back to copy+remove across filesystems
func renameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
