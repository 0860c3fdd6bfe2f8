// Package fileset manages the per-unit parquet files on disk.
//
// Each unit is stored as a small family of files in the data directory:
//
//	{UNIT}_master.parquet   authoritative merged history
//	{UNIT}_dedup.parquet    deduplicated copy for querying
//	{UNIT}_updated.parquet  fresh batch dropped off by an external updater
//
// The set resolves which file is authoritative for a unit, replaces files
// atomically, and archives parquet files whose names it does not recognize.
package fileset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var log = logging.Component("fileset")

// Variant identifies the role of a unit file.
type Variant int

const (
	// VariantMaster is the authoritative merged history.
	VariantMaster Variant = iota
	// VariantDedup is the deduplicated query copy.
	VariantDedup
	// VariantUpdated is a fresh batch awaiting merge. It outranks the
	// other variants when resolving the newest data for a unit.
	VariantUpdated
)

// String returns a human-readable representation of the Variant.
func (v Variant) String() string {
	switch v {
	case VariantMaster:
		return "master"
	case VariantDedup:
		return "dedup"
	case VariantUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// File describes one recognized unit file.
type File struct {
	Path    string
	Unit    string
	Variant Variant
	Size    int64
	ModTime time.Time
}

// fileNameRE matches recognized unit file names. The updated variant may
// carry a timestamp suffix from older drop-off runs.
var fileNameRE = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*)_(master|dedup|updated(?:_[0-9TZ-]+)?)\.parquet$`)

// unitNameRE validates a bare unit name.
var unitNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// FileSet manages the unit files in one data directory.
type FileSet struct {
	dir string
}

// New creates a FileSet over dir, creating it if needed.
func New(dir string) (*FileSet, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileSet{dir: dir}, nil
}

// Dir returns the data directory.
func (fs *FileSet) Dir() string {
	return fs.dir
}

// NormalizeUnit canonicalizes a unit name. Unit names are case-insensitive
// on disk; the canonical form is upper case.
func NormalizeUnit(unit string) (string, error) {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	if !unitNameRE.MatchString(unit) {
		return "", errors.NewInvalidValue("unit", unit, "must be alphanumeric with dashes")
	}
	return unit, nil
}

// MasterPath returns the master file path for a unit.
func (fs *FileSet) MasterPath(unit string) string {
	return filepath.Join(fs.dir, unit+"_master.parquet")
}

// DedupPath returns the dedup file path for a unit.
func (fs *FileSet) DedupPath(unit string) string {
	return filepath.Join(fs.dir, unit+"_dedup.parquet")
}

// UpdatedPath returns the updated (drop-off) file path for a unit.
func (fs *FileSet) UpdatedPath(unit string) string {
	return filepath.Join(fs.dir, unit+"_updated.parquet")
}

// parseName classifies a file name. Returns false for unrecognized names.
func parseName(name string) (unit string, variant Variant, ok bool) {
	m := fileNameRE.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}

	unit = strings.ToUpper(m[1])
	switch {
	case m[2] == "master":
		variant = VariantMaster
	case m[2] == "dedup":
		variant = VariantDedup
	default:
		variant = VariantUpdated
	}
	return unit, variant, true
}

// list returns all recognized unit files, optionally filtered by unit.
func (fs *FileSet) list(unit string) ([]File, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		u, variant, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		if unit != "" && u != unit {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, File{
			Path:    filepath.Join(fs.dir, entry.Name()),
			Unit:    u,
			Variant: variant,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return files, nil
}

// List returns all recognized files for a unit.
func (fs *FileSet) List(unit string) ([]File, error) {
	unit, err := NormalizeUnit(unit)
	if err != nil {
		return nil, err
	}
	return fs.list(unit)
}

// Units returns the distinct units that have at least one recognized file,
// in sorted order.
func (fs *FileSet) Units() ([]string, error) {
	files, err := fs.list("")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var units []string
	for _, f := range files {
		if !seen[f.Unit] {
			seen[f.Unit] = true
			units = append(units, f.Unit)
		}
	}
	sort.Strings(units)
	return units, nil
}

// Resolve returns the authoritative file for a unit. An updated drop-off
// outranks everything else; between master and dedup the newest mtime
// wins, since an interrupted refresh can leave either one ahead.
// Returns a not-found error when the unit has no recognized files, which
// is the normal state for a unit that was never fetched.
func (fs *FileSet) Resolve(unit string) (File, error) {
	unit, err := NormalizeUnit(unit)
	if err != nil {
		return File{}, err
	}

	files, err := fs.list(unit)
	if err != nil {
		return File{}, err
	}
	if len(files) == 0 {
		return File{}, fmt.Errorf("unit '%s': %w", unit, errors.ErrFileNotFound)
	}

	rank := func(v Variant) int {
		if v == VariantUpdated {
			return 1
		}
		return 0
	}

	best := files[0]
	for _, f := range files[1:] {
		if rank(f.Variant) > rank(best.Variant) {
			best = f
			continue
		}
		if rank(f.Variant) == rank(best.Variant) && f.ModTime.After(best.ModTime) {
			best = f
		}
	}
	return best, nil
}

// ResolveHistory returns the unit's newest full-history file (master or
// dedup), ignoring updated drop-offs, which hold only a fresh batch.
func (fs *FileSet) ResolveHistory(unit string) (File, error) {
	unit, err := NormalizeUnit(unit)
	if err != nil {
		return File{}, err
	}

	files, err := fs.list(unit)
	if err != nil {
		return File{}, err
	}

	var best File
	found := false
	for _, f := range files {
		if f.Variant == VariantUpdated {
			continue
		}
		if !found || f.ModTime.After(best.ModTime) {
			best = f
			found = true
		}
	}
	if !found {
		return File{}, fmt.Errorf("unit '%s': %w", unit, errors.ErrFileNotFound)
	}
	return best, nil
}

// Read returns the unit's records from its authoritative file, optionally
// restricted to [start, end]. A zero start or end leaves that side
// unbounded. Rows are read in bounded chunks so memory stays proportional
// to the matching rows, not the file.
func (fs *FileSet) Read(unit string, start, end time.Time) ([]types.ReadingRecord, error) {
	f, err := fs.Resolve(unit)
	if err != nil {
		return nil, err
	}
	return parquet.ReadRange(f.Path, start, end, 0)
}

// AtomicReplace produces path without ever exposing a partial file. The
// write callback receives a temporary sibling path; on success the temp
// file is renamed over path. The temp file is removed on failure.
func (fs *FileSet) AtomicReplace(path string, write func(tmp string) error) error {
	tmp := fmt.Sprintf("%s.tmp-%d-%d", path, os.Getpid(), time.Now().UnixNano())

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %v: %w", path, err, errors.ErrWriteFailed)
	}
	return nil
}

// ConsumeUpdated removes a unit's updated files after their contents have
// been merged into the master. Missing files are not an error.
func (fs *FileSet) ConsumeUpdated(unit string) error {
	files, err := fs.List(unit)
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.Variant != VariantUpdated {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", f.Path, err)
		}
		log.Debug("consumed updated file", "unit", unit, "path", f.Path)
	}
	return nil
}

// ArchiveUnrecognized moves parquet files with unrecognized names into
// an archive/ subdirectory so they cannot shadow unit files. Name
// collisions in the archive get a numeric suffix. Returns the number of
// files moved.
func (fs *FileSet) ArchiveUnrecognized() (int, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return 0, fmt.Errorf("read data dir: %w", err)
	}

	archiveDir := filepath.Join(fs.dir, "archive")
	moved := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".parquet" {
			continue
		}
		if _, _, ok := parseName(name); ok {
			continue
		}

		if moved == 0 {
			if err := os.MkdirAll(archiveDir, 0755); err != nil {
				return 0, fmt.Errorf("create archive dir: %w", err)
			}
		}

		src := filepath.Join(fs.dir, name)
		dst := filepath.Join(archiveDir, name)
		for i := 1; ; i++ {
			if _, err := os.Stat(dst); os.IsNotExist(err) {
				break
			}
			ext := filepath.Ext(name)
			dst = filepath.Join(archiveDir, fmt.Sprintf("%s.%d%s", strings.TrimSuffix(name, ext), i, ext))
		}

		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("archive %s: %w", name, err)
		}
		log.Info("archived unrecognized file", "file", name, "dest", dst)
		moved++
	}

	return moved, nil
}

// DiskUsage holds disk usage information for the data directory.
type DiskUsage struct {
	FileCount int
	TotalSize int64
}

// GetDiskUsage returns the size of all recognized unit files.
func (fs *FileSet) GetDiskUsage() (DiskUsage, error) {
	files, err := fs.list("")
	if err != nil {
		return DiskUsage{}, err
	}

	var usage DiskUsage
	for _, f := range files {
		usage.FileCount++
		usage.TotalSize += f.Size
	}
	return usage, nil
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
