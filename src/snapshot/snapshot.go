// Package snapshot copies a service's configuration and state directories
// into a backup set and swaps them back into place on restore.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"openstack-backup/src/util/fsutil"
)

// Leaf names of the two trees inside a service set.
const (
	EtcLeaf    = "etc"
	VarLibLeaf = "varlib"
)

const rotateLayout = "20060102150405"

// Paths are the live directories of one service.
type Paths struct {
	Etc    string
	VarLib string
}

// RestoreIOError reports a failed restore filesystem operation.
type RestoreIOError struct {
	Service string
	Path    string
	Err     error
}

func (e *RestoreIOError) Error() string {
	return fmt.Sprintf("restore %s: %s: %v", e.Service, e.Path, e.Err)
}

func (e *RestoreIOError) Unwrap() error { return e.Err }

// Snapshotter copies service trees relative to RootDir.
type Snapshotter struct {
	// RootDir prefixes the live paths; "/" on a normal host.
	RootDir string
	Log     *zap.Logger
	// Now stamps rotated .orig directories.
	Now func() time.Time
}

// New returns a Snapshotter rooted at rootDir.
func New(rootDir string, log *zap.Logger) *Snapshotter {
	if rootDir == "" {
		rootDir = "/"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Snapshotter{RootDir: rootDir, Log: log, Now: time.Now}
}

// PathsFor returns the live config and data directories for service.
func (s *Snapshotter) PathsFor(service string) Paths {
	root := s.RootDir
	if root == "" {
		root = "/"
	}
	return Paths{
		Etc:    filepath.Join(root, "etc", service),
		VarLib: filepath.Join(root, "var", "lib", service),
	}
}

func (s *Snapshotter) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Snapshotter) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Snapshot copies the service's live directories into setDir/etc and
// setDir/varlib. Missing live directories are skipped and reported as
// warnings.
func (s *Snapshotter) Snapshot(ctx context.Context, service, setDir string) ([]string, error) {
	if err := os.MkdirAll(setDir, 0o755); err != nil {
		return nil, fmt.Errorf("create set dir: %w", err)
	}
	p := s.PathsFor(service)
	var warnings []string
	for _, pair := range [][2]string{{p.Etc, EtcLeaf}, {p.VarLib, VarLibLeaf}} {
		if err := ctx.Err(); err != nil {
			return warnings, err
		}
		src, leaf := pair[0], pair[1]
		if _, err := os.Stat(src); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w := fmt.Sprintf("%s does not exist, skipping", src)
				s.logger().Warn("service directory missing", zap.String("target", service), zap.String("path", src))
				warnings = append(warnings, w)
				continue
			}
			return warnings, fmt.Errorf("stat %s: %w", src, err)
		}
		dst := filepath.Join(setDir, leaf)
		s.logger().Info("copying service directory", zap.String("target", service), zap.String("path", src))
		if err := fsutil.CopyTree(src, dst); err != nil {
			return warnings, fmt.Errorf("snapshot %s: %w", src, err)
		}
	}
	return warnings, nil
}

// RestoreInto moves the live directories aside to <dir>.orig and copies the
// set's trees into place. An existing .orig is rotated to
// <dir>.orig-<timestamp> first. The .orig directories are never removed.
func (s *Snapshotter) RestoreInto(ctx context.Context, setDir, service string) error {
	p := s.PathsFor(service)
	for _, live := range []string{p.Etc, p.VarLib} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.moveAside(live); err != nil {
			return &RestoreIOError{Service: service, Path: live, Err: err}
		}
	}

	etcSrc := filepath.Join(setDir, EtcLeaf)
	if info, err := os.Stat(etcSrc); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return &RestoreIOError{Service: service, Path: etcSrc, Err: err}
	}
	if err := s.copyInto(etcSrc, p.Etc); err != nil {
		return &RestoreIOError{Service: service, Path: p.Etc, Err: err}
	}

	varSrc := filepath.Join(setDir, VarLibLeaf)
	if _, err := os.Stat(varSrc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger().Warn("set has no data directory", zap.String("target", service), zap.String("path", setDir))
			return nil
		}
		return &RestoreIOError{Service: service, Path: varSrc, Err: err}
	}
	if err := s.copyInto(varSrc, p.VarLib); err != nil {
		return &RestoreIOError{Service: service, Path: p.VarLib, Err: err}
	}
	return nil
}

func (s *Snapshotter) copyInto(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	s.logger().Info("restoring directory", zap.String("path", dst))
	return fsutil.CopyTree(src, dst)
}

func (s *Snapshotter) moveAside(live string) error {
	if _, err := os.Lstat(live); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	orig := live + ".orig"
	if _, err := os.Lstat(orig); err == nil {
		rotated := orig + "-" + s.now().Format(rotateLayout)
		s.logger().Info("rotating previous breadcrumb", zap.String("path", orig), zap.String("to", rotated))
		if err := os.Rename(orig, rotated); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger().Info("moving live directory aside", zap.String("path", live), zap.String("to", orig))
	return os.Rename(live, orig)
}
