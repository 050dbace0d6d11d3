// pkg/render/engo/assets.go
package engo

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-flight/pkg/entity"
)

// Sprite sizes in pixels, per hull class.
var classSizes = map[entity.ShipClass]image.Point{
	entity.Fighter:     {X: 16, Y: 16},
	entity.Interceptor: {X: 12, Y: 18},
	entity.Capital:     {X: 24, Y: 32},
}

// AssetManager builds and hands out the sprites the engo client draws.
// Sprites are generated from pixel patterns; there are no image files.
type AssetManager struct {
	shipSprites  map[entity.ShipClass]common.Drawable
	cameraMarker common.Drawable
}

// NewAssetManager creates an empty asset manager. LoadAssets needs a GL context.
func NewAssetManager() *AssetManager {
	return &AssetManager{
		shipSprites: make(map[entity.ShipClass]common.Drawable),
	}
}

// LoadAssets uploads one sprite per hull class plus the camera marker.
func (am *AssetManager) LoadAssets() error {
	for class := range classSizes {
		am.shipSprites[class] = am.createSprite(classPattern(class))
	}
	am.cameraMarker = am.createSprite(markerPattern(7))
	return nil
}

// classPattern returns the nose-up silhouette for a hull class.
func classPattern(class entity.ShipClass) [][]int {
	size, ok := classSizes[class]
	if !ok {
		size = classSizes[entity.Fighter]
		class = entity.Fighter
	}
	w, h := size.X, size.Y
	pattern := newPattern(w, h)

	for y := 0; y < h; y++ {
		var half float64
		switch class {
		case entity.Interceptor:
			// Long dart with swept wings on the last third.
			half = 1 + float64(w)/6*float64(y)/float64(h)
			if y > 2*h/3 {
				half = float64(w) / 2 * float64(y-2*h/3+1) / float64(h-2*h/3)
			}
		case entity.Capital:
			// Short tapered bow, then a full-width hull.
			half = float64(w) / 2
			if y < h/4 {
				half = float64(w) / 2 * float64(y+1) / float64(h/4)
			}
		default:
			half = float64(w) / 2 * float64(y+1) / float64(h)
		}
		fillRow(pattern[y], half)
	}
	return pattern
}

// markerPattern is a hollow cross used for the camera position.
func markerPattern(size int) [][]int {
	pattern := newPattern(size, size)
	mid := size / 2
	for i := 0; i < size; i++ {
		pattern[mid][i] = 1
		pattern[i][mid] = 1
	}
	pattern[mid][mid] = 0
	return pattern
}

func newPattern(w, h int) [][]int {
	pattern := make([][]int, h)
	for y := range pattern {
		pattern[y] = make([]int, w)
	}
	return pattern
}

// fillRow sets the pixels within half of the row centre.
func fillRow(row []int, half float64) {
	center := float64(len(row)) / 2
	for x := range row {
		px := float64(x) + 0.5
		if px >= center-half && px <= center+half {
			row[x] = 1
		}
	}
}

// createSprite creates a sprite from a 2D pattern
func (am *AssetManager) createSprite(pattern [][]int) common.Drawable {
	return am.convertToEngoTexture(patternImage(pattern))
}

// patternImage draws a pattern as opaque white pixels on a transparent image.
// Sprites are tinted through RenderComponent.Color.
func patternImage(pattern [][]int) *image.NRGBA {
	height := len(pattern)
	width := 0
	if height > 0 {
		width = len(pattern[0])
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.NRGBA{0, 0, 0, 0}}, image.Point{}, draw.Src)
	for y, row := range pattern {
		for x, pixel := range row {
			if x >= width {
				break
			}
			if pixel == 1 {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

// convertToEngoTexture uploads an image as an engo texture.
func (am *AssetManager) convertToEngoTexture(img *image.NRGBA) common.Drawable {
	texture := common.NewImageObject(img)
	return common.NewTextureSingle(texture)
}

// ShipSprite returns the sprite for a hull class, falling back to the fighter.
// It returns nil before LoadAssets.
func (am *AssetManager) ShipSprite(class entity.ShipClass) common.Drawable {
	if sprite, exists := am.shipSprites[class]; exists {
		return sprite
	}
	return am.shipSprites[entity.Fighter]
}

// ShipSize returns the sprite size for a hull class in pixels.
func ShipSize(class entity.ShipClass) (width, height float32) {
	size, ok := classSizes[class]
	if !ok {
		size = classSizes[entity.Fighter]
	}
	return float32(size.X), float32(size.Y)
}

// CameraMarker returns the camera position sprite.
func (am *AssetManager) CameraMarker() common.Drawable {
	return am.cameraMarker
}
