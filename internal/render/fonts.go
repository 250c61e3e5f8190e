package render

import (
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	fontOnce  sync.Once
	fontData  *opentype.Font
	fontErr   error
	faceMu    sync.Mutex
	faceCache = make(map[float64]font.Face)
)

// face returns the embedded Go Regular face at sizePx pixels.
func face(sizePx float64) (font.Face, error) {
	fontOnce.Do(func() {
		fontData, fontErr = opentype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, eris.Wrap(fontErr, "render: parse font")
	}

	faceMu.Lock()
	defer faceMu.Unlock()
	if f, ok := faceCache[sizePx]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(fontData, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, eris.Wrap(err, "render: new face")
	}
	faceCache[sizePx] = f
	return f, nil
}
