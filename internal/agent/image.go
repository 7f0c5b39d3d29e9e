package agent

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// encodeImageURL reads an image file and returns it as a base64 data
// URL suitable for a multimodal chat message.
func encodeImageURL(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := imageMIMETypes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported image format %q (want png, jpg, jpeg)", ext)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the task definition
	if err != nil {
		return "", fmt.Errorf("read reference image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("reference image %s is empty", path)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
