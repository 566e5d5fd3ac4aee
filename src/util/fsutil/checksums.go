package fsutil

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ChecksumsFile is the per-set checksum list.
const ChecksumsFile = "checksums.txt"

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteChecksums records the sha256 of every regular file under dir, by
// relative slash-separated path, in dir/checksums.txt.
func WriteChecksums(dir string) error {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == ChecksumsFile {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	out, err := os.Create(filepath.Join(dir, ChecksumsFile))
	if err != nil {
		return err
	}
	for _, name := range files {
		sum, err := SHA256File(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			_ = out.Close()
			return err
		}
		if _, err := fmt.Fprintf(out, "%s  %s\n", sum, name); err != nil {
			_ = out.Close()
			return err
		}
	}
	return out.Close()
}

// VerifyChecksums re-hashes every file listed in dir/checksums.txt and
// returns a status: "ok", "mismatch", or "missing checksums.txt: ...".
func VerifyChecksums(dir string) string {
	f, err := os.Open(filepath.Join(dir, ChecksumsFile))
	if err != nil {
		return fmt.Sprintf("missing %s: %v", ChecksumsFile, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	ok := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// <sha256>  <relative path>
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			ok = false
			continue
		}
		sum, err := SHA256File(filepath.Join(dir, filepath.FromSlash(parts[1])))
		if err != nil || !strings.EqualFold(parts[0], sum) {
			ok = false
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Sprintf("read %s: %v", ChecksumsFile, err)
	}
	if ok {
		return "ok"
	}
	return "mismatch"
}

// SHA256File returns the hex sha256 of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
