// Package backup archives a Cairn database file (and its write-ahead log,
// if present) into a single tar.xz, and restores one back onto disk. It is
// SPEC_FULL.md's dump/export story, grounded on the teacher's
// core/capsule.PackWithOptions/Unpack tar+xz archiving idiom.
package backup

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	cairnerrors "github.com/cairndb/cairn/core/errors"
)

// Manifest describes one backup archive's contents, written as
// "manifest.json" ahead of the data files it names.
type Manifest struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SourcePath string    `json:"source_path"`
	Files      []Entry   `json:"files"`
}

// Entry is one archived file's name (relative to the source database's
// directory) and size.
type Entry struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

// Create archives path (and path+".wal", if it exists) into archivePath as
// a tar.xz. Returns the manifest actually written, so callers can log a
// human-readable summary (e.g. with humanize.Bytes).
func Create(path, archivePath string) (*Manifest, error) {
	sources, err := sourceFiles(path)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, cairnerrors.NewIO("create", archivePath, err)
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return nil, cairnerrors.NewIO("open xz writer", archivePath, err)
	}
	defer xw.Close()

	tw := tar.NewWriter(xw)
	defer tw.Close()

	manifest := &Manifest{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		SourcePath: path,
	}
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, cairnerrors.NewIO("stat", src, err)
		}
		manifest.Files = append(manifest.Files, Entry{Name: filepath.Base(src), Bytes: info.Size()})
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, cairnerrors.NewParse("json", archivePath, err.Error())
	}
	if err := writeTarEntry(tw, "manifest.json", manifestData); err != nil {
		return nil, err
	}

	for _, src := range sources {
		if err := writeTarFile(tw, src); err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

// Restore extracts archivePath (a tar.xz produced by Create) into destDir,
// returning the manifest it shipped with.
func Restore(archivePath, destDir string) (*Manifest, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, cairnerrors.NewIO("mkdir", destDir, err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, cairnerrors.NewIO("open", archivePath, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, cairnerrors.NewIO("open xz reader", archivePath, err)
	}
	tr := tar.NewReader(xr)

	var manifest Manifest
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cairnerrors.NewIO("read tar entry", archivePath, err)
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, cairnerrors.NewIO("read tar entry body", hdr.Name, err)
		}
		if hdr.Name == "manifest.json" {
			if err := json.Unmarshal(data, &manifest); err != nil {
				return nil, cairnerrors.NewParse("json", hdr.Name, err.Error())
			}
			continue
		}
		if err := os.WriteFile(filepath.Join(destDir, hdr.Name), data, 0o644); err != nil {
			return nil, cairnerrors.NewIO("write", hdr.Name, err)
		}
	}
	return &manifest, nil
}

// Summary renders a one-line human-readable description of a manifest
// (cmd/cairn's `backup`/`restore` commands print this).
func Summary(m *Manifest) string {
	var total int64
	for _, e := range m.Files {
		total += e.Bytes
	}
	return fmt.Sprintf("backup %s: %d file(s), %s", m.ID, len(m.Files), humanize.Bytes(uint64(total)))
}

func sourceFiles(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, cairnerrors.NewIO("stat", path, err)
	}
	files := []string{path}
	if _, err := os.Stat(path + ".wal"); err == nil {
		files = append(files, path+".wal")
	}
	return files, nil
}

func writeTarFile(tw *tar.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cairnerrors.NewIO("read", path, err)
	}
	return writeTarEntry(tw, filepath.Base(path), data)
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return cairnerrors.NewIO("write tar header", name, err)
	}
	_, err := tw.Write(data)
	if err != nil {
		return cairnerrors.NewIO("write tar body", name, err)
	}
	return nil
}
