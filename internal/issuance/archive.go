package issuance

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ArchiveName is the bundle written next to locally generated certificates.
const ArchiveName = "certificates.zip"

// WriteArchive zips every distinct delivered file of report into w. Files
// overwritten during the run appear once, with their final contents.
func WriteArchive(w io.Writer, report *Report) (int, error) {
	zw := zip.NewWriter(w)

	seen := make(map[string]bool)
	n := 0
	for _, res := range report.Results {
		if res.Reference == "" || res.Failed() || seen[res.Reference] {
			continue
		}
		seen[res.Reference] = true

		if err := addFile(zw, res.Reference); err != nil {
			zw.Close()
			return n, err
		}
		n++
	}

	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("finalizing archive: %w", err)
	}
	return n, nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", path, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteArchiveFile writes the archive into dir and returns its path.
func WriteArchiveFile(dir string, report *Report) (string, int, error) {
	path := filepath.Join(dir, ArchiveName)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating archive: %w", err)
	}
	n, err := WriteArchive(f, report)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", n, err
	}
	return path, n, nil
}
