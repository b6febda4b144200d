package vigil

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// MeshPoints is the number of points of a face mesh.
const MeshPoints = 468

// Eye contour indices of the face mesh, in the p0..p5 order:
// outer corner, two upper lid points, inner corner, two lower lid points.
var (
	LeftEyeIndices  = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeIndices = [6]int{362, 385, 387, 263, 373, 380}
)

// ErrShortMesh is returned when a face mesh has fewer points than expected.
var ErrShortMesh = errors.New("face mesh has too few points")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FaceMesh is a dense facial landmark set produced by an external face mesh model.
type FaceMesh struct {
	Points []Point `json:"points"`
	Score  float64 `json:"score,omitempty"`
}

// Eyes extracts the left and right eye contours.
func (m FaceMesh) Eyes() ([2]EyeLandmarks, error) {
	var eyes [2]EyeLandmarks
	if len(m.Points) < MeshPoints {
		return eyes, fmt.Errorf("%w: got %d, want %d", ErrShortMesh, len(m.Points), MeshPoints)
	}
	for i := 0; i < 6; i++ {
		eyes[0][i] = m.Points[LeftEyeIndices[i]]
		eyes[1][i] = m.Points[RightEyeIndices[i]]
	}
	return eyes, nil
}

// LandmarkFrame holds the face meshes found in one frame.
// When Width and Height are set the points are considered normalized
// to [0, 1] and they are scaled to pixel space before computing the EAR.
type LandmarkFrame struct {
	Width  int        `json:"width,omitempty"`
	Height int        `json:"height,omitempty"`
	Faces  []FaceMesh `json:"faces"`
}

// Reading converts the best scoring face of the frame into an EyeReading.
func (f LandmarkFrame) Reading() (EyeReading, error) {
	if len(f.Faces) == 0 {
		return EyeReading{}, nil
	}

	best := f.Faces[0]
	for _, m := range f.Faces[1:] {
		if m.Score > best.Score {
			best = m
		}
	}

	eyes, err := best.Eyes()
	if err != nil {
		return EyeReading{}, err
	}
	if f.Width > 0 && f.Height > 0 {
		for i := range eyes {
			for j := range eyes[i] {
				eyes[i][j].X *= float64(f.Width)
				eyes[i][j].Y *= float64(f.Height)
			}
		}
	}

	return EyeReading{
		FaceFound: true,
		EyesFound: len(eyes),
		Eyes:      eyes[:],
	}, nil
}

// ParseLandmarkFrame decodes a single JSON landmark frame.
func ParseLandmarkFrame(data []byte) (LandmarkFrame, error) {
	var f LandmarkFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("invalid landmark frame: %w", err)
	}
	return f, nil
}

// LandmarkDecoder reads a stream of JSON landmark frames, one value per frame.
type LandmarkDecoder struct {
	dec   *jsoniter.Decoder
	frame uint64
}

// NewLandmarkDecoder returns a decoder reading the frames from r.
func NewLandmarkDecoder(r io.Reader) *LandmarkDecoder {
	return &LandmarkDecoder{dec: json.NewDecoder(r)}
}

// Next decodes the next frame. It returns io.EOF once the stream is exhausted.
func (d *LandmarkDecoder) Next() (LandmarkFrame, error) {
	var f LandmarkFrame
	if !d.dec.More() {
		return f, io.EOF
	}
	d.frame++
	if err := d.dec.Decode(&f); err != nil {
		return f, fmt.Errorf("invalid landmark frame #%d: %w", d.frame, err)
	}
	return f, nil
}
