package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"
)

// maxImageWidth is the width stored images are scaled down to.
const maxImageWidth = 800

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
}

type imageUpload struct {
	data      []byte
	extension string
}

// format returns the image subtype for the extension ("png" or "jpeg").
func (u imageUpload) format() string {
	if u.extension == ".png" {
		return "png"
	}
	return "jpeg"
}

// hash is the SHA256 of the uploaded bytes; it names the stored file.
func (u imageUpload) hash() string {
	sum := sha256.Sum256(u.data)
	return hex.EncodeToString(sum[:])
}

// readImageUpload reads the "file" form field, answering 400/500 itself on failure.
func readImageUpload(c *gin.Context) (imageUpload, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("get form err: %s", err.Error()))
		return imageUpload{}, false
	}

	extension := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[extension] {
		c.String(http.StatusBadRequest, "Invalid file type. Only JPEG, JPG, and PNG images are allowed.")
		return imageUpload{}, false
	}

	src, err := file.Open()
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("open file err: %s", err.Error()))
		return imageUpload{}, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("read image err: %s", err.Error()))
		return imageUpload{}, false
	}

	return imageUpload{data: data, extension: extension}, true
}

// saveImage writes a resized copy of the upload into dir and returns the
// URI it is served under.
func saveImage(dir string, upload imageUpload) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(upload.data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > maxImageWidth {
		img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create images directory: %w", err)
	}

	name := upload.hash() + upload.extension
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer out.Close()

	switch upload.extension {
	case ".jpeg", ".jpg":
		err = jpeg.Encode(out, img, nil)
	case ".png":
		err = png.Encode(out, img)
	default:
		return "", fmt.Errorf("unsupported image format: %s", upload.extension)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	return "/images/" + name, nil
}
