package token

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// ArtifactPath builds the filename the rendered token image will live at.
// The path is decided at registration time so it can be stored on the
// identity before the worker has rendered the image.
func ArtifactPath(dir string) string {
	name := fmt.Sprintf("QR_%s_%s.png", uuid.NewString(), time.Now().Format("20060102_150405"))
	return filepath.Join(dir, name)
}

// RenderArtifact writes the encoded token string as a QR PNG at path,
// creating the parent directory if needed. High error correction so worn
// printouts still scan.
func RenderArtifact(encoded, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("artifact dir: %w", err)
		}
	}
	if err := qrcode.WriteFile(encoded, qrcode.High, 512, path); err != nil {
		return fmt.Errorf("render artifact: %w", err)
	}
	return nil
}

// RemoveArtifact deletes a rendered token image. Missing files are not an
// error; callers treat removal as best effort.
func RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
