package directory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"openstack-backup/src/backend"
)

// TimestampLayout is the minute-resolution stamp in set directory names.
const TimestampLayout = "200601021504"

// maxCollisions bounds the _NN suffix used for sets created in the same minute.
const maxCollisions = 99

var stampRegexp = regexp.MustCompile(`^[0-9]{12}(_[0-9]{2})?$`)

// NoBackupFoundError reports that no set exists for a target.
type NoBackupFoundError struct {
	Target string
	Root   string
}

func (e *NoBackupFoundError) Error() string {
	return fmt.Sprintf("no backup found for %s in %s", e.Target, e.Root)
}

// Registry names, creates and discovers backup sets of the form
// <root>/<target>-<YYYYMMDDHHmm>[_NN].
type Registry struct {
	Root string
}

// New returns a Registry for root. root need not exist yet.
func New(root string) (*Registry, error) {
	if root == "" {
		return nil, errors.New("backup root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve backup root: %w", err)
	}
	return &Registry{Root: abs}, nil
}

// NameFor returns the set path for target at t. It touches nothing on disk.
func (r *Registry) NameFor(target string, t time.Time) string {
	return filepath.Join(r.Root, target+"-"+t.Format(TimestampLayout))
}

// Create makes a new, empty set directory for target at t. If the base name
// is taken, _01 through _99 are tried in turn.
func (r *Registry) Create(target string, t time.Time) (string, error) {
	if err := os.MkdirAll(r.Root, 0o755); err != nil {
		return "", fmt.Errorf("create backup root: %w", err)
	}
	base := r.NameFor(target, t)
	candidate := base
	for i := 0; i <= maxCollisions; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s_%02d", base, i)
		}
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create backup set: %w", err)
		}
	}
	return "", fmt.Errorf("more than %d backup sets for %s in minute %s", maxCollisions, target, t.Format(TimestampLayout))
}

// LatestFor returns the path of the newest set for target.
func (r *Registry) LatestFor(target string) (string, error) {
	stamps, err := r.stamps(target)
	if err != nil || len(stamps) == 0 {
		return "", &NoBackupFoundError{Target: target, Root: r.Root}
	}
	return filepath.Join(r.Root, target+"-"+stamps[len(stamps)-1]), nil
}

// List returns every set, sorted by target then timestamp. kind filters to
// a single target unless it is empty or "all".
func (r *Registry) List(kind string) ([]backend.Entry, error) {
	names, err := readDirNames(r.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []backend.Entry
	for _, name := range names {
		tgt, ts, ok := splitName(name)
		if !ok {
			continue
		}
		if kind != "" && kind != backend.KindAll && kind != tgt {
			continue
		}
		created, err := ParseStamp(ts)
		if err != nil {
			continue
		}
		entries = append(entries, backend.Entry{Target: tgt, Timestamp: ts, Path: filepath.Join(r.Root, name), Created: created})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		if a.Target != c.Target {
			return a.Target < c.Target
		}
		return a.Timestamp < c.Timestamp
	})
	return entries, nil
}

func (r *Registry) stamps(target string) ([]string, error) {
	info, err := os.Stat(r.Root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backup root is not a directory: %s", r.Root)
	}
	names, err := readDirNames(r.Root)
	if err != nil {
		return nil, err
	}
	prefix := target + "-"
	var out []string
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		ts := strings.TrimPrefix(name, prefix)
		if stampRegexp.MatchString(ts) {
			out = append(out, ts)
		}
	}
	sort.Strings(out)
	return out, nil
}

// splitName parses <target>-<stamp>. Targets may contain dashes, so the
// stamp is taken from the last dash.
func splitName(name string) (target, stamp string, ok bool) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return "", "", false
	}
	target, stamp = name[:i], name[i+1:]
	if !stampRegexp.MatchString(stamp) {
		return "", "", false
	}
	return target, stamp, true
}

// ParseStamp returns the time encoded in a set timestamp, ignoring any
// collision suffix.
func ParseStamp(stamp string) (time.Time, error) {
	if !stampRegexp.MatchString(stamp) {
		return time.Time{}, fmt.Errorf("invalid backup timestamp %q", stamp)
	}
	return time.ParseInLocation(TimestampLayout, stamp[:12], time.Local)
}

func readDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			name := e.Name()
			// skip hidden
			if strings.HasPrefix(name, ".") {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
