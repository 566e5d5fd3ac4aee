// Package fsutil holds the filesystem helpers shared by backup sets: a
// metadata-preserving tree copy, JSON manifests and sha256 checksum files.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// CopyTree copies the directory src to dst recursively, preserving
// permission bits, modification times and symlinks. Ownership is copied when
// the process is allowed to change it. dst must not exist yet.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination already exists: %s", dst)
	}
	return copyDir(src, dst, info)
}

func copyDir(src, dst string, info fs.FileInfo) error {
	if err := os.Mkdir(dst, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", src, err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		ei, err := os.Lstat(srcPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", srcPath, err)
		}
		switch {
		case ei.IsDir():
			err = copyDir(srcPath, dstPath, ei)
		case ei.Mode()&os.ModeSymlink != 0:
			err = copySymlink(srcPath, dstPath, ei)
		case ei.Mode().IsRegular():
			err = copyFile(srcPath, dstPath, ei)
		default:
			// sockets, fifos and devices are not configuration or state
			continue
		}
		if err != nil {
			return err
		}
	}
	// directory metadata last so the mtime survives the writes above
	return applyMetadata(dst, info)
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return applyMetadata(dst, info)
}

func copySymlink(src, dst string, info fs.FileInfo) error {
	link, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	if err := os.Symlink(link, dst); err != nil {
		return fmt.Errorf("symlink %s: %w", dst, err)
	}
	chown(dst, info, true)
	return nil
}

func applyMetadata(path string, info fs.FileInfo) error {
	chown(path, info, false)
	if err := os.Chmod(path, info.Mode().Perm()|info.Mode()&(os.ModeSetuid|os.ModeSetgid|os.ModeSticky)); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	mtime := info.ModTime()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("chtimes %s: %w", path, err)
	}
	return nil
}

// chown copies ownership when permitted; unprivileged runs keep their own.
func chown(path string, info fs.FileInfo, link bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	if link {
		_ = os.Lchown(path, int(st.Uid), int(st.Gid))
		return
	}
	_ = os.Chown(path, int(st.Uid), int(st.Gid))
}

// DirSize sums the sizes of regular files under root.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
