package surface

import (
	"fmt"
	"image"
	"os"

	// Campaign assets are overwhelmingly png/jpeg; gif covers the rest.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/hajimehoshi/ebiten/v2"
)

// imageCache decodes campaign images on demand and keeps the current and
// previous textures alive. Refs are file paths from the controller.
type imageCache struct {
	ref   string
	img   *ebiten.Image
	fail  string
	limit int

	prev map[string]*ebiten.Image
}

func newImageCache() *imageCache {
	return &imageCache{limit: 8, prev: make(map[string]*ebiten.Image)}
}

// get returns the texture for ref, decoding it on first use. A failed
// decode is remembered so the render loop does not re-read the file every
// frame.
func (c *imageCache) get(ref string) (*ebiten.Image, error) {
	if ref == "" {
		return nil, nil
	}
	if ref == c.ref {
		if c.fail != "" {
			return nil, fmt.Errorf("%s", c.fail)
		}
		return c.img, nil
	}

	if c.img != nil {
		if len(c.prev) >= c.limit {
			for k, img := range c.prev {
				img.Deallocate()
				delete(c.prev, k)
			}
		}
		c.prev[c.ref] = c.img
	}
	c.ref = ref
	c.img = nil
	c.fail = ""

	if cached, ok := c.prev[ref]; ok {
		delete(c.prev, ref)
		c.img = cached
		return cached, nil
	}

	img, err := decodeImage(ref)
	if err != nil {
		c.fail = err.Error()
		return nil, err
	}
	c.img = img
	return img, nil
}

func decodeImage(path string) (*ebiten.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return ebiten.NewImageFromImage(decoded), nil
}
