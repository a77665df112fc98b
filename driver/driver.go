// Package driver puts a path-based interface in front of a mounted FAT32
// volume, so that callers can work with "/dir/file.txt" instead of directory
// entries.
package driver

import (
	"errors"
	"fmt"
	"os"
	posixpath "path"
	"path/filepath"
	"strings"

	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/drivers/fat32"
)

// Volume is the set of operations on directory entries that BaseDriver builds
// on. [fat32.Driver] implements it.
type Volume interface {
	GetRoot() (fat32.Dirent, error)
	ReadDir(dir fat32.Dirent) ([]fat32.Dirent, error)
	Stat(dir fat32.Dirent, name string) (fat32.Dirent, error)
	ReadFile(dir fat32.Dirent, name string) ([]byte, error)
	Create(dir fat32.Dirent, name string, isDir bool) (fat32.Dirent, error)
	WriteFile(dir fat32.Dirent, name string, data []byte) error
	Truncate(dir fat32.Dirent, name string, length uint32) error
	Rename(dir fat32.Dirent, oldName, newName string) error
	Delete(dir fat32.Dirent, name string) error
	Flush() error
}

var _ Volume = (*fat32.Driver)(nil)

// BaseDriver resolves paths against a [Volume]. Relative paths are relative to
// a working directory, which starts out as the root.
type BaseDriver struct {
	volume         Volume
	workingDirPath string
}

var _ sdfat.FileSystem = (*BaseDriver)(nil)

// New creates a new [BaseDriver] for a mounted volume.
func New(volume Volume) *BaseDriver {
	return &BaseDriver{
		volume:         volume,
		workingDirPath: "/",
	}
}

// NormalizePath converts `path` into a clean absolute path.
func (driver *BaseDriver) NormalizePath(path string) string {
	path = posixpath.Clean(filepath.ToSlash(path))
	if path == "." {
		path = "/"
	}
	if posixpath.IsAbs(path) {
		return path
	}
	return posixpath.Join(driver.workingDirPath, path)
}

// lookup resolves a normalized absolute path to a directory entry. The root
// directory is returned for "/".
func (driver *BaseDriver) lookup(path string) (fat32.Dirent, error) {
	current, err := driver.volume.GetRoot()
	if err != nil {
		return fat32.Dirent{}, err
	}

	walked := "/"
	for _, component := range strings.Split(strings.Trim(path, "/"), "/") {
		if component == "" {
			continue
		}
		if !current.IsDir() {
			return fat32.Dirent{}, sdfat.ErrNotADirectory.WithMessage(
				fmt.Sprintf("cannot resolve path %q: %q is not a directory", path, walked))
		}

		current, err = driver.volume.Stat(current, component)
		if err != nil {
			return fat32.Dirent{}, err
		}
		walked = posixpath.Join(walked, component)
	}
	return current, nil
}

// lookupParent resolves the directory holding `path`, and returns it together
// with the last component of `path`.
func (driver *BaseDriver) lookupParent(path string) (fat32.Dirent, string, error) {
	parentPath, baseName := posixpath.Split(path)
	if baseName == "" {
		return fat32.Dirent{}, "", sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q has no parent directory", path))
	}

	parent, err := driver.lookup(parentPath)
	if err != nil {
		return fat32.Dirent{}, "", err
	}
	if !parent.IsDir() {
		return fat32.Dirent{}, "", sdfat.ErrNotADirectory.WithMessage(
			fmt.Sprintf("cannot resolve path %q: %q is not a directory", path, parentPath))
	}
	return parent, baseName, nil
}

func (driver *BaseDriver) Chdir(path string) error {
	absPath := driver.NormalizePath(path)

	object, err := driver.lookup(absPath)
	if err != nil {
		return err
	}
	if !object.IsDir() {
		return sdfat.ErrNotADirectory.WithMessage(absPath)
	}

	driver.workingDirPath = absPath
	return nil
}

// Getwd returns the working directory as an absolute path. The error will always
// be nil; it's only there for compatibility with [os.Getwd].
func (driver *BaseDriver) Getwd() (string, error) {
	return driver.workingDirPath, nil
}

func (driver *BaseDriver) Stat(path string) (os.FileInfo, error) {
	object, err := driver.lookup(driver.NormalizePath(path))
	if err != nil {
		return nil, err
	}
	return object, nil
}

// ReadDir lists the directory at `path`, without the "." and ".." entries.
func (driver *BaseDriver) ReadDir(path string) ([]os.FileInfo, error) {
	absPath := driver.NormalizePath(path)
	directory, err := driver.lookup(absPath)
	if err != nil {
		return nil, err
	}

	dirents, err := driver.volume.ReadDir(directory)
	if err != nil {
		return nil, err
	}

	entries := make([]os.FileInfo, 0, len(dirents))
	for _, dirent := range dirents {
		if dirent.Name() == "." || dirent.Name() == ".." {
			continue
		}
		entries = append(entries, dirent)
	}
	return entries, nil
}

func (driver *BaseDriver) ReadFile(path string) ([]byte, error) {
	parent, baseName, err := driver.lookupParent(driver.NormalizePath(path))
	if err != nil {
		return nil, err
	}
	return driver.volume.ReadFile(parent, baseName)
}

// WriteFile sets the contents of a file to the given data, creating it if
// necessary.
func (driver *BaseDriver) WriteFile(path string, data []byte) error {
	absPath := driver.NormalizePath(path)
	parent, baseName, err := driver.lookupParent(absPath)
	if err != nil {
		return err
	}

	_, err = driver.volume.Stat(parent, baseName)
	if errors.Is(err, sdfat.ErrNotFound) {
		_, err = driver.volume.Create(parent, baseName, false)
	}
	if err != nil {
		return err
	}
	return driver.volume.WriteFile(parent, baseName, data)
}

func (driver *BaseDriver) Mkdir(path string) error {
	parent, baseName, err := driver.lookupParent(driver.NormalizePath(path))
	if err != nil {
		return err
	}
	_, err = driver.volume.Create(parent, baseName, true)
	return err
}

// MkdirAll creates a directory and any missing parents. Directories that
// already exist are not an error, but a file anywhere in the path is.
func (driver *BaseDriver) MkdirAll(path string) error {
	absPath := driver.NormalizePath(path)
	if absPath == "/" {
		return nil
	}

	existing, err := driver.lookup(absPath)
	if err == nil {
		if !existing.IsDir() {
			return sdfat.ErrNotADirectory.WithMessage(
				fmt.Sprintf("can't create %q: a file is in the way", absPath))
		}
		return nil
	}
	if !errors.Is(err, sdfat.ErrNotFound) {
		return err
	}

	err = driver.MkdirAll(posixpath.Dir(absPath))
	if err != nil {
		return err
	}
	return driver.Mkdir(absPath)
}

// Remove deletes a file or an empty directory.
func (driver *BaseDriver) Remove(path string) error {
	absPath := driver.NormalizePath(path)
	if absPath == "/" {
		return sdfat.ErrInvalidArgument.WithMessage("you can't remove the root directory")
	}

	parent, baseName, err := driver.lookupParent(absPath)
	if err != nil {
		return err
	}
	return driver.volume.Delete(parent, baseName)
}

// RemoveAll is equivalent to `rm -rf`.
func (driver *BaseDriver) RemoveAll(path string) error {
	absPath := driver.NormalizePath(path)

	// Block an attempt at `rm -rf /`, because some clown is gonna try it.
	if absPath == "/" {
		return sdfat.ErrInvalidArgument.WithMessage("you can't remove the root directory")
	}

	object, err := driver.lookup(absPath)
	if err != nil {
		return err
	}
	if object.IsDir() {
		err = driver.removeDirectoryContents(absPath, object)
		if err != nil {
			return err
		}
	}
	return driver.Remove(absPath)
}

// removeDirectoryContents deletes everything inside a directory, depth-first.
// It stops at the first error encountered.
func (driver *BaseDriver) removeDirectoryContents(path string, directory fat32.Dirent) error {
	dirents, err := driver.volume.ReadDir(directory)
	if err != nil {
		return err
	}

	for _, dirent := range dirents {
		name := dirent.Name()
		if name == "." || name == ".." {
			continue
		}

		if dirent.IsDir() {
			err = driver.removeDirectoryContents(posixpath.Join(path, name), dirent)
			if err != nil {
				return err
			}
		}

		err = driver.volume.Delete(directory, name)
		if err != nil {
			return err
		}
	}
	return nil
}

// Rename changes the name of a file or directory. Both paths must be in the
// same directory; an existing file at `newPath` is replaced.
func (driver *BaseDriver) Rename(oldPath, newPath string) error {
	oldAbsPath := driver.NormalizePath(oldPath)
	newAbsPath := driver.NormalizePath(newPath)

	if posixpath.Dir(oldAbsPath) != posixpath.Dir(newAbsPath) {
		return sdfat.ErrNotSupported.WithMessage(
			fmt.Sprintf(
				"can't move %q to %q: renaming only works within a directory",
				oldAbsPath,
				newAbsPath))
	}

	parent, oldName, err := driver.lookupParent(oldAbsPath)
	if err != nil {
		return err
	}
	return driver.volume.Rename(parent, oldName, posixpath.Base(newAbsPath))
}

// Truncate changes the size of a file, padding it with null bytes if it grows.
func (driver *BaseDriver) Truncate(path string, size int64) error {
	absPath := driver.NormalizePath(path)
	if size < 0 || size > 0xFFFFFFFF {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("can't truncate %q to %d bytes", absPath, size))
	}

	parent, baseName, err := driver.lookupParent(absPath)
	if err != nil {
		return err
	}
	return driver.volume.Truncate(parent, baseName, uint32(size))
}

func (driver *BaseDriver) Flush() error {
	return driver.volume.Flush()
}
