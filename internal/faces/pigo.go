package faces

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"

	"relip/internal/services"
)

// mouthCascades lists the FLP cascades covering the outer lip contour, in
// scheme order. Each contributes two scheme slots: the detected point and its
// vertically mirrored counterpart.
var mouthCascades = []string{"lp93", "lp84", "lp82", "lp81"}

// Settings tunes the pigo cascade classifier.
type Settings struct {
	MinFaceSize      int
	MaxFaceSize      int
	ShiftFactor      float64
	ScaleFactor      float64
	QualityThreshold float64
	Perturbs         int
}

// PigoLocator implements Locator on top of the pigo cascade classifier. The
// model assets (facefinder, puploc, and the lps landmark cascades) are loaded
// once at construction; loading is the expensive part, detection is cheap.
type PigoLocator struct {
	classifier *pigo.Pigo
	puploc     *pigo.PuplocCascade
	flp        map[string]*pigo.PuplocCascade
	settings   Settings
}

// LoadLocator reads the cascade assets from dir and constructs a locator.
// Missing assets are a fatal configuration problem: the pipeline cannot run
// without its landmark model.
func LoadLocator(dir string, settings Settings) (*PigoLocator, error) {
	faceFinder, err := os.ReadFile(filepath.Join(dir, "facefinder"))
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "landmark locator", "load facefinder cascade", dir, err)
	}
	classifier, err := pigo.NewPigo().Unpack(faceFinder)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "landmark locator", "unpack facefinder cascade", "", err)
	}

	puplocData, err := os.ReadFile(filepath.Join(dir, "puploc"))
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "landmark locator", "load puploc cascade", dir, err)
	}
	puploc, err := pigo.NewPuplocCascade().UnpackCascade(puplocData)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "landmark locator", "unpack puploc cascade", "", err)
	}

	flp := make(map[string]*pigo.PuplocCascade, len(mouthCascades))
	for _, name := range mouthCascades {
		data, err := os.ReadFile(filepath.Join(dir, "lps", name))
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "landmark locator", "load landmark cascade "+name, dir, err)
		}
		cascade, err := pigo.NewPuplocCascade().UnpackCascade(data)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "landmark locator", "unpack landmark cascade "+name, "", err)
		}
		flp[name] = cascade
	}

	return &PigoLocator{
		classifier: classifier,
		puploc:     puploc,
		flp:        flp,
		settings:   settings,
	}, nil
}

// Detect runs face detection on the frame and localizes the eye and mouth
// landmark points for each clustered detection above the quality threshold.
func (l *PigoLocator) Detect(frame *image.RGBA) ([]Landmarks, error) {
	if frame == nil {
		return nil, fmt.Errorf("detect: nil frame")
	}
	bounds := frame.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	pixels := pigo.RgbToGrayscale(frame)

	imgParams := pigo.ImageParams{
		Pixels: pixels,
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
	maxSize := l.settings.MaxFaceSize
	if maxSize > rows {
		maxSize = rows
	}
	if maxSize > cols {
		maxSize = cols
	}
	cParams := pigo.CascadeParams{
		MinSize:     l.settings.MinFaceSize,
		MaxSize:     maxSize,
		ShiftFactor: l.settings.ShiftFactor,
		ScaleFactor: l.settings.ScaleFactor,
		ImageParams: imgParams,
	}

	detections := l.classifier.RunCascade(cParams, 0.0)
	detections = l.classifier.ClusterDetections(detections, 0.2)

	var found []Landmarks
	for _, det := range detections {
		if float64(det.Q) < l.settings.QualityThreshold {
			continue
		}
		landmarks := Landmarks{
			Quality: det.Q,
			Box: image.Rect(
				det.Col-det.Scale/2,
				det.Row-det.Scale/2,
				det.Col+det.Scale/2,
				det.Row+det.Scale/2,
			),
		}
		l.locatePoints(&landmarks, det, imgParams)
		found = append(found, landmarks)
	}
	return found, nil
}

func (l *PigoLocator) locatePoints(landmarks *Landmarks, det pigo.Detection, imgParams pigo.ImageParams) {
	perturbs := l.settings.Perturbs
	if perturbs <= 0 {
		perturbs = 50
	}

	leftSeed := pigo.Puploc{
		Row:      det.Row - int(0.075*float32(det.Scale)),
		Col:      det.Col - int(0.175*float32(det.Scale)),
		Scale:    float32(det.Scale) * 0.25,
		Perturbs: perturbs,
	}
	leftEye := l.puploc.RunDetector(leftSeed, imgParams, 0.0, false)

	rightSeed := pigo.Puploc{
		Row:      det.Row - int(0.075*float32(det.Scale)),
		Col:      det.Col + int(0.185*float32(det.Scale)),
		Scale:    float32(det.Scale) * 0.25,
		Perturbs: perturbs,
	}
	rightEye := l.puploc.RunDetector(rightSeed, imgParams, 0.0, false)

	if leftEye == nil || rightEye == nil || leftEye.Row <= 0 || leftEye.Col <= 0 || rightEye.Row <= 0 || rightEye.Col <= 0 {
		// The FLP cascades anchor on the pupils; without both the mouth
		// cannot be localized this frame.
		return
	}
	landmarks.Points[PointLeftEye] = image.Pt(leftEye.Col, leftEye.Row)
	landmarks.Points[PointRightEye] = image.Pt(rightEye.Col, rightEye.Row)

	slot := MouthStart
	for _, name := range mouthCascades {
		cascade := l.flp[name]
		for _, flipped := range []bool{false, true} {
			point := cascade.GetLandmarkPoint(leftEye, rightEye, imgParams, perturbs, flipped)
			if point != nil && point.Row > 0 && point.Col > 0 {
				landmarks.Points[slot] = image.Pt(point.Col, point.Row)
			}
			slot++
		}
	}
}
