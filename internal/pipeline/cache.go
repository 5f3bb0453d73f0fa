package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"relip/internal/fileutil"
)

const frameFilePattern = "frame_%05d.png"

// jobKey derives a stable directory name from the job's file paths, so a rerun
// of the same job lands in the same cache and resumes where it stopped.
func jobKey(syncedPath, originalPath, outputPath string) string {
	h := sha256.New()
	for _, p := range []string{syncedPath, originalPath, outputPath} {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// frameCache is the on-disk store of finished frames and their masks. Frame
// images double as the resume marker: a frame whose image file exists needs no
// further work.
type frameCache struct {
	root      string
	imagesDir string
	masksDir  string
}

func newFrameCache(workDir, key string) (*frameCache, error) {
	root := filepath.Join(workDir, key)
	cache := &frameCache{
		root:      root,
		imagesDir: filepath.Join(root, "images"),
		masksDir:  filepath.Join(root, "masks"),
	}
	for _, dir := range []string{cache.imagesDir, cache.masksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("frame cache: create %s: %w", dir, err)
		}
	}
	return cache, nil
}

func (c *frameCache) imagePath(index int) string {
	return filepath.Join(c.imagesDir, fmt.Sprintf(frameFilePattern, index))
}

func (c *frameCache) maskPath(index int) string {
	return filepath.Join(c.masksDir, fmt.Sprintf(frameFilePattern, index))
}

func (c *frameCache) hasImage(index int) bool {
	return fileutil.Exists(c.imagePath(index))
}

func (c *frameCache) writeImage(index int, frame *image.RGBA) error {
	return writePNGAtomic(c.imagePath(index), frame)
}

func (c *frameCache) writeMask(index int, mask *image.Gray) error {
	return writePNGAtomic(c.maskPath(index), mask)
}

// remove deletes the whole cache directory. Called only after the output video
// exists; a failed run keeps its cache for resumption.
func (c *frameCache) remove() error {
	return os.RemoveAll(c.root)
}

func writePNGAtomic(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("frame cache: encode %s: %w", filepath.Base(path), err)
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("frame cache: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
