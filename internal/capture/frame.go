package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrUnsupportedFrame is returned for Mats that are not 8-bit gray, BGR or BGRA.
var ErrUnsupportedFrame = errors.New("unsupported frame type")

// FramePixels converts a camera frame into a packed RGBA buffer and returns
// it with the frame's width and height.
func FramePixels(frame *gocv.Mat) ([]byte, int, int, error) {
	if frame == nil || frame.Empty() {
		return nil, 0, 0, ErrEmptyFrame
	}

	var code gocv.ColorConversionCode
	switch frame.Type() {
	case gocv.MatTypeCV8UC1:
		code = gocv.ColorGrayToRGBA
	case gocv.MatTypeCV8UC3:
		code = gocv.ColorBGRToRGBA
	case gocv.MatTypeCV8UC4:
		code = gocv.ColorBGRAToRGBA
	default:
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedFrame, frame.Type())
	}

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(*frame, &rgba, code)

	return rgba.ToBytes(), rgba.Cols(), rgba.Rows(), nil
}

// DecodeImage decodes an encoded image (JPEG, PNG, ...) into a BGR Mat.
// The caller is responsible for closing the returned Mat.
func DecodeImage(data []byte) (*gocv.Mat, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode image: %w", ErrEmptyFrame)
	}
	return &mat, nil
}

// DecodePixels decodes an encoded image straight into an RGBA buffer.
func DecodePixels(data []byte) ([]byte, int, int, error) {
	mat, err := DecodeImage(data)
	if err != nil {
		return nil, 0, 0, err
	}
	defer mat.Close()
	return FramePixels(mat)
}

// EncodeJPEG encodes a frame as JPEG.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
