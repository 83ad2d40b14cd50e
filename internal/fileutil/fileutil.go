package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// PartialPrefix names in-progress copies so an interrupted copy never
// occupies the destination name.
const PartialPrefix = ".mediasort-"

// CopyFileVerified streams src into a partial file beside dst with SHA256 +
// size integrity verification, then renames it into place. The source mode
// and modification time are preserved. Nothing is left at dst on failure.
func CopyFileVerified(fs afero.Fs, src, dst string) error {
	srcInfo, err := fs.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial := filepath.Join(filepath.Dir(dst), PartialPrefix+filepath.Base(dst)+".part")
	out, err := fs.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		_ = fs.Remove(partial)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = fs.Remove(partial)
		return err
	}
	if err := out.Close(); err != nil {
		_ = fs.Remove(partial)
		return err
	}

	if written != srcSize {
		_ = fs.Remove(partial)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = fs.Remove(partial)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	_ = fs.Chtimes(partial, srcInfo.ModTime(), srcInfo.ModTime())
	if err := fs.Rename(partial, dst); err != nil {
		_ = fs.Remove(partial)
		return err
	}
	return nil
}

// MoveFile renames src to dst, falling back to a verified copy plus removal
// when the two paths live on different filesystems.
func MoveFile(fs afero.Fs, src, dst string) error {
	err := fs.Rename(src, dst)
	if err == nil || !errors.Is(err, unix.EXDEV) {
		return err
	}
	if err := CopyFileVerified(fs, src, dst); err != nil {
		return fmt.Errorf("cross-device copy: %w", err)
	}
	if err := fs.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// HashFile returns the hex SHA256 of path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Identical reports whether a and b hold the same content. Sizes must match;
// with byMtime the modification times are compared instead of hashing.
func Identical(fs afero.Fs, a, b string, byMtime bool) (bool, error) {
	infoA, err := fs.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := fs.Stat(b)
	if err != nil {
		return false, err
	}
	if !infoA.Mode().IsRegular() || !infoB.Mode().IsRegular() || infoA.Size() != infoB.Size() {
		return false, nil
	}
	if byMtime {
		return infoA.ModTime().Equal(infoB.ModTime()), nil
	}
	hashA, err := HashFile(fs, a)
	if err != nil {
		return false, err
	}
	hashB, err := HashFile(fs, b)
	if err != nil {
		return false, err
	}
	return hashA == hashB, nil
}
