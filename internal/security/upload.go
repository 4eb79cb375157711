package security

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"lostfound/internal/auth"
)

// UploadResult carries the stored filename or the reason an upload was
// refused. Refusals are not errors.
type UploadResult struct {
	OK       bool
	Filename string
	Error    string
	MIME     string
}

// GenerateSecureFilename keeps only the lower-cased extension of original.
func GenerateSecureFilename(original string) (string, error) {
	name, err := auth.RandomHex(16)
	if err != nil {
		return "", err
	}
	return name + strings.ToLower(filepath.Ext(filepath.Base(original))), nil
}

// HandleFileUpload validates fh against the upload policy and copies it into
// dir under a generated name.
func (s *Service) HandleFileUpload(fh *multipart.FileHeader, dir string) (UploadResult, error) {
	if fh == nil {
		return UploadResult{Error: "No file was uploaded."}, nil
	}
	cfg := s.cfg.Upload
	if fh.Size <= 0 {
		return UploadResult{Error: "The uploaded file is empty."}, nil
	}
	if fh.Size > cfg.MaxBytes {
		return UploadResult{Error: fmt.Sprintf("File is larger than %d bytes.", cfg.MaxBytes)}, nil
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if !contains(cfg.AllowedExtensions, ext) {
		return UploadResult{Error: "File type is not allowed."}, nil
	}

	src, err := fh.Open()
	if err != nil {
		return UploadResult{Error: "Upload failed."}, nil
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return UploadResult{}, fmt.Errorf("sniff upload: %w", err)
	}
	if !mimeAllowed(mt, cfg.AllowedMIMETypes) {
		return UploadResult{Error: "File content is not an allowed image type.", MIME: mt.String()}, nil
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return UploadResult{}, fmt.Errorf("rewind upload: %w", err)
	}

	name, err := GenerateSecureFilename(fh.Filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload name: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(dir, name)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(src, cfg.MaxBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return UploadResult{}, fmt.Errorf("write upload: %w", err)
	}
	if n > cfg.MaxBytes {
		_ = os.Remove(dst)
		return UploadResult{Error: fmt.Sprintf("File is larger than %d bytes.", cfg.MaxBytes)}, nil
	}
	return UploadResult{OK: true, Filename: name, MIME: mt.String()}, nil
}

// RemoveUpload deletes a stored upload by name. Missing files are ignored.
func RemoveUpload(dir, name string) error {
	if name == "" || name != filepath.Base(name) {
		return nil
	}
	err := os.Remove(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func mimeAllowed(mt *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if mt.Is(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
