// Package bundle appends a module tree to an executable as a ZIP archive and
// reads it back as an fs.FS, so a single binary can carry its own modules.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MagicMarker identifies bundled binaries
	MagicMarker = "MODRTZIP"
	// FooterSize: 8 bytes offset + 8 bytes size + 8 bytes magic
	FooterSize = 24
)

// ErrNotBundled is returned when a binary carries no module bundle.
var ErrNotBundled = errors.New("binary is not bundled")

// ignoreFiles matches editor backup and lock files.
var ignoreFiles = regexp.MustCompile(`^(|.*/)((#|\.#)[^/]*|[^/]*~)$`)

// Footer contains metadata about the bundled ZIP
type Footer struct {
	Offset int64   // Offset to start of ZIP data
	Size   int64   // Size of ZIP data
	Magic  [8]byte // MagicMarker
}

// CreateBundle writes outputPath as a copy of sourceBinary with the files
// under moduleDir appended. Any bundle already on sourceBinary is replaced.
func CreateBundle(sourceBinary, moduleDir, outputPath string) error {
	// Get the size of the executable portion (excluding any existing bundle)
	binarySize, err := GetBinarySize(sourceBinary)
	if err != nil {
		return fmt.Errorf("failed to get binary size: %w", err)
	}

	srcFile, err := os.Open(sourceBinary)
	if err != nil {
		return fmt.Errorf("failed to open source binary: %w", err)
	}
	defer srcFile.Close()

	// Build the archive first so a bad tree leaves no output behind
	var zipBuf bytes.Buffer
	if err := WriteArchive(&zipBuf, moduleDir); err != nil {
		return err
	}

	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.CopyN(outFile, srcFile, binarySize); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}
	if _, err := outFile.Write(zipBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to write ZIP data: %w", err)
	}

	footer := Footer{Offset: binarySize, Size: int64(zipBuf.Len())}
	copy(footer.Magic[:], MagicMarker)
	if err := binary.Write(outFile, binary.LittleEndian, footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}
	return outFile.Close()
}

// WriteArchive writes the files under dir to w as a ZIP archive.
func WriteArchive(w io.Writer, dir string) error {
	zipWriter := zip.NewWriter(w)
	if err := addDirToZip(zipWriter, dir); err != nil {
		zipWriter.Close()
		return fmt.Errorf("failed to add files to ZIP: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close ZIP writer: %w", err)
	}
	return nil
}

// addDirToZip recursively adds directory contents to ZIP. Symlinks are
// stored as the file they point to, which must lie inside sourceDir.
func addDirToZip(zipWriter *zip.Writer, sourceDir string) error {
	absSourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of source: %w", err)
	}

	return filepath.WalkDir(sourceDir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || ignoreFiles.MatchString(filepath.ToSlash(filePath)) {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, filePath)
		if err != nil {
			return err
		}
		zipPath := filepath.ToSlash(relPath)

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := resolveSymlink(filePath, absSourceDir)
			if err != nil {
				return err
			}
			filePath = target
		}

		info, err := os.Stat(filePath)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return addFileToZip(zipWriter, filePath, zipPath, info.Mode())
	})
}

// addFileToZip adds a regular file to the ZIP archive with mode preservation
func addFileToZip(zipWriter *zip.Writer, filePath, zipPath string, mode fs.FileMode) error {
	header := &zip.FileHeader{
		Name:   zipPath,
		Method: zip.Deflate,
	}
	header.SetMode(mode)

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}

// resolveSymlink returns the absolute target of a relative symlink that
// stays within absSourceDir.
func resolveSymlink(symlinkPath, absSourceDir string) (string, error) {
	target, err := os.Readlink(symlinkPath)
	if err != nil {
		return "", fmt.Errorf("failed to read symlink %s: %w", symlinkPath, err)
	}
	if filepath.IsAbs(target) {
		return "", fmt.Errorf("absolute symlink not allowed: %s -> %s", symlinkPath, target)
	}

	absTarget, err := filepath.Abs(filepath.Join(filepath.Dir(symlinkPath), target))
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlink target: %w", err)
	}
	if !isWithinDir(absTarget, absSourceDir) {
		return "", fmt.Errorf("symlink escapes bundle: %s -> %s (resolves to %s)", symlinkPath, target, absTarget)
	}
	return absTarget, nil
}

// isWithinDir checks if absPath is within absDir
func isWithinDir(absPath, absDir string) bool {
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// readFooter reads the footer of an open binary. ok is false when the
// binary has no bundle.
func readFooter(file *os.File) (footer Footer, size int64, ok bool, err error) {
	info, err := file.Stat()
	if err != nil {
		return footer, 0, false, fmt.Errorf("failed to stat binary: %w", err)
	}
	size = info.Size()
	if size < FooterSize {
		return footer, size, false, nil
	}

	if _, err := file.Seek(size-FooterSize, io.SeekStart); err != nil {
		return footer, size, false, fmt.Errorf("failed to seek to footer: %w", err)
	}
	if err := binary.Read(file, binary.LittleEndian, &footer); err != nil {
		return footer, size, false, nil
	}
	if !bytes.Equal(footer.Magic[:], []byte(MagicMarker)) {
		return footer, size, false, nil
	}
	if footer.Offset < 0 || footer.Size < 0 || footer.Offset+footer.Size > size-FooterSize {
		return footer, size, false, nil
	}
	return footer, size, true, nil
}

// GetBinarySize returns the size of the executable portion (excluding bundle).
// If bundled, returns the offset to the bundle. Otherwise returns total file size.
func GetBinarySize(binaryPath string) (int64, error) {
	file, err := os.Open(binaryPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open binary: %w", err)
	}
	defer file.Close()

	footer, size, ok, err := readFooter(file)
	if err != nil {
		return 0, err
	}
	if ok {
		return footer.Offset, nil
	}
	return size, nil
}

// Open returns a reader for the bundle appended to binaryPath.
// It returns ErrNotBundled if there is none.
func Open(binaryPath string) (*zip.Reader, error) {
	file, err := os.Open(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}
	defer file.Close()

	footer, _, ok, err := readFooter(file)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotBundled
	}

	zipData := make([]byte, footer.Size)
	if _, err := file.ReadAt(zipData, footer.Offset); err != nil {
		return nil, fmt.Errorf("failed to read ZIP data: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(zipData), footer.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP reader: %w", err)
	}
	return zipReader, nil
}

// IsBundled checks if the current binary has bundled content.
func IsBundled() (bool, error) {
	exePath, err := os.Executable()
	if err != nil {
		return false, err
	}
	file, err := os.Open(exePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	_, _, ok, err := readFooter(file)
	return ok, err
}

// FS returns the bundle of the current binary as a file system.
func FS() (fs.FS, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	zipReader, err := Open(exePath)
	if err != nil {
		return nil, err
	}
	return zipReader, nil
}

// ExtractBundle extracts the bundle of binaryPath to a directory.
func ExtractBundle(binaryPath, targetDir string) error {
	zipReader, err := Open(binaryPath)
	if err != nil {
		return err
	}
	absTargetDir, err := filepath.Abs(targetDir)
	if err != nil {
		return err
	}
	for _, f := range zipReader.File {
		if err := extractZipFile(f, absTargetDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

// extractZipFile extracts a single file from ZIP
func extractZipFile(f *zip.File, absTargetDir string) error {
	targetPath := filepath.Join(absTargetDir, filepath.FromSlash(f.Name))
	if !isWithinDir(targetPath, absTargetDir) {
		return fmt.Errorf("zip entry escapes target directory: %s", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(targetPath, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return err
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, rc)
	return err
}
