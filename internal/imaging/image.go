package imaging

import "errors"

// ErrDecode indicates bytes that cannot be decoded as an image. ErrShape
// indicates a decoded image whose dimensions or channel count violate the
// tile contract. Both are fatal to the pipeline run.
var (
	ErrDecode = errors.New("cannot decode image")
	ErrShape  = errors.New("unexpected image shape")
)

// Image is a decoded tile: 8-bit RGB, row-major HWC.
type Image struct {
	Pix      []uint8
	Width    int
	Height   int
	Channels int
}

// Decoder turns encoded image bytes into a fixed-size RGB image. The decode
// stage of the pipeline runs this on a worker pool, so implementations must
// be safe for concurrent use.
type Decoder interface {
	Decode(data []byte, targetWidth, targetHeight int) (Image, error)
}
