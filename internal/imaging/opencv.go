package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenCVDecoder decodes tiles with OpenCV: IMDecode yields BGR, which is
// converted to RGB and resized to the target size with bilinear
// interpolation. IMReadColor guarantees 8-bit 3-channel output.
type OpenCVDecoder struct{}

func (OpenCVDecoder) Decode(data []byte, targetWidth, targetHeight int) (Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return Image{}, fmt.Errorf("%w: decoded image is empty", ErrDecode)
	}

	if mat.Channels() != 3 {
		return Image{}, fmt.Errorf("%w: got %d channels, want 3", ErrShape, mat.Channels())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	if err := gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB); err != nil {
		return Image{}, fmt.Errorf("%w: bgr to rgb: %v", ErrDecode, err)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(rgb, &resized, image.Pt(targetWidth, targetHeight), 0, 0, gocv.InterpolationLinear); err != nil {
		return Image{}, fmt.Errorf("%w: resize: %v", ErrDecode, err)
	}

	raw, err := resized.DataPtrUint8()
	if err != nil {
		return Image{}, fmt.Errorf("%w: reading mat data: %v", ErrShape, err)
	}

	if len(raw) != targetWidth*targetHeight*3 {
		return Image{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShape, len(raw), targetWidth*targetHeight*3)
	}

	pix := make([]uint8, len(raw))
	copy(pix, raw)

	return Image{Pix: pix, Width: targetWidth, Height: targetHeight, Channels: 3}, nil
}
