package vigil

import (
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/esimov/vigil/utils"
)

// eyeCascades are the facial landmark cascades describing the eye region.
var eyeCascades = []string{"lp46", "lp44", "lp42", "lp38", "lp312"}

// DetectorParams holds the face and pupil detection options.
type DetectorParams struct {
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	// IoU is the intersection over union threshold used for clustering the detections.
	IoU float64
	// Angle is the rotation angle of the faces, in the [0, 1] range (1 is 2*Pi).
	Angle float64
	// MinQuality is the minimum detection score for a face to be accepted.
	MinQuality float32
	// Perturbs is the number of random perturbations used by the pupil localization.
	Perturbs int
	// MaxWidth downscales the frames wider than this before running the detection.
	MaxWidth int
}

// DefaultDetectorParams returns the detection options suited for webcam frames.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		MinSize:     60,
		MaxSize:     1000,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		IoU:         0.2,
		MinQuality:  5,
		Perturbs:    63,
		MaxWidth:    640,
	}
}

// Face is a detected face with its eye and landmark points, in frame coordinates.
type Face struct {
	Rect      image.Rectangle `json:"rect"`
	Q         float32         `json:"q"`
	Eyes      []Point         `json:"eyes"`
	Landmarks []Point         `json:"landmarks,omitempty"`
}

// CascadeDetector finds faces with the pigo face cascade and localizes
// the pupils inside them. Frames with fewer than two pupils found are
// considered to have closed eyes.
type CascadeDetector struct {
	mu        sync.Mutex
	face      *pigo.Pigo
	pupil     *pigo.PuplocCascade
	landmarks map[string][]*pigo.FlpCascade
	params    DetectorParams
}

// NewCascadeDetector loads the face and pupil localization cascade files.
func NewCascadeDetector(faceCascade, puplocCascade string, p DetectorParams) (*CascadeDetector, error) {
	cf, err := os.ReadFile(faceCascade)
	if err != nil {
		return nil, fmt.Errorf("could not read the face cascade file: %w", err)
	}
	face, err := pigo.NewPigo().Unpack(cf)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the face cascade file: %w", err)
	}

	pf, err := os.ReadFile(puplocCascade)
	if err != nil {
		return nil, fmt.Errorf("could not read the pupil cascade file: %w", err)
	}
	pupil, err := pigo.NewPuplocCascade().UnpackCascade(pf)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the pupil cascade file: %w", err)
	}

	return &CascadeDetector{
		face:   face,
		pupil:  pupil,
		params: p,
	}, nil
}

// WithLandmarks loads the facial landmark cascades from dir.
// Landmarks are used only for annotating the frames.
func (d *CascadeDetector) WithLandmarks(dir string) error {
	flpcs, err := d.pupil.ReadCascadeDir(dir)
	if err != nil {
		return fmt.Errorf("error reading the facial landmark cascades: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.landmarks = flpcs
	return nil
}

// Detect returns the faces found in the image, best scoring first.
func (d *CascadeDetector) Detect(src image.Image) []Face {
	img := ToNRGBA(src)
	ratio := 1.0

	if d.params.MaxWidth > 0 && img.Bounds().Dx() > d.params.MaxWidth {
		ratio = float64(img.Bounds().Dx()) / float64(d.params.MaxWidth)
		img = imaging.Resize(img, d.params.MaxWidth, 0, imaging.Linear)
	}
	cols, rows := img.Bounds().Dx(), img.Bounds().Dy()

	imgParams := pigo.ImageParams{
		Pixels: grayscale(img),
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
	cParams := pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     utils.Min(d.params.MaxSize, utils.Max(cols, rows)),
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: imgParams,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Run the classifier over the obtained leaf nodes and return the detection results.
	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := d.face.RunCascade(cParams, d.params.Angle)
	dets = d.face.ClusterDetections(dets, d.params.IoU)

	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.params.MinQuality {
			continue
		}
		half := det.Scale / 2
		face := Face{
			Rect: image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half),
			Q:    det.Q,
		}

		leftEye := d.locatePupil(det, imgParams, -1)
		rightEye := d.locatePupil(det, imgParams, 1)
		for _, eye := range []*pigo.Puploc{leftEye, rightEye} {
			if found(eye) {
				face.Eyes = append(face.Eyes, Point{X: float64(eye.Col), Y: float64(eye.Row)})
			}
		}
		if found(leftEye) && found(rightEye) && d.landmarks != nil {
			face.Landmarks = d.locateLandmarks(leftEye, rightEye, imgParams)
		}
		faces = append(faces, face.scale(ratio))
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Q > faces[j].Q
	})
	return faces
}

// Scan runs the detection and summarizes the best face into an EyeReading.
func (d *CascadeDetector) Scan(img image.Image) ([]Face, EyeReading) {
	faces := d.Detect(img)
	return faces, Reading(faces)
}

// Reading builds an EyeReading from the best scoring face.
func Reading(faces []Face) EyeReading {
	if len(faces) == 0 {
		return EyeReading{}
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Q > best.Q {
			best = f
		}
	}
	return EyeReading{
		FaceFound: true,
		EyesFound: len(best.Eyes),
	}
}

// locatePupil runs the pupil localization on one side of the face.
// A negative side selects the left eye, a positive one the right eye.
func (d *CascadeDetector) locatePupil(det pigo.Detection, img pigo.ImageParams, side int) *pigo.Puploc {
	puploc := pigo.Puploc{
		Row:      det.Row - int(0.085*float32(det.Scale)),
		Col:      det.Col + side*int(0.185*float32(det.Scale)),
		Scale:    float32(det.Scale) * 0.4,
		Perturbs: d.params.Perturbs,
	}
	return d.pupil.RunDetector(puploc, img, 0.0, false)
}

// locateLandmarks returns the eye region landmark points of both eyes.
func (d *CascadeDetector) locateLandmarks(leftEye, rightEye *pigo.Puploc, img pigo.ImageParams) []Point {
	var points []Point

	for _, name := range eyeCascades {
		for _, flpc := range d.landmarks[name] {
			if flpc == nil || flpc.PuplocCascade == nil {
				continue
			}
			for _, flip := range []bool{false, true} {
				flp := flpc.GetLandmarkPoint(leftEye, rightEye, img, d.params.Perturbs, flip)
				if found(flp) {
					points = append(points, Point{X: float64(flp.Col), Y: float64(flp.Row)})
				}
			}
		}
	}
	return points
}

// found reports whether the pupil or landmark localization succeeded.
func found(p *pigo.Puploc) bool {
	return p != nil && p.Row > 0 && p.Col > 0
}

// scale maps the face coordinates back to the original frame size.
func (f Face) scale(ratio float64) Face {
	if ratio == 1 {
		return f
	}
	sc := func(v int) int { return int(float64(v) * ratio) }

	f.Rect = image.Rect(sc(f.Rect.Min.X), sc(f.Rect.Min.Y), sc(f.Rect.Max.X), sc(f.Rect.Max.Y))
	for i := range f.Eyes {
		f.Eyes[i].X *= ratio
		f.Eyes[i].Y *= ratio
	}
	for i := range f.Landmarks {
		f.Landmarks[i].X *= ratio
		f.Landmarks[i].Y *= ratio
	}
	return f
}
