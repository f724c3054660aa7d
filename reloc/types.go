package reloc

import (
	"github.com/golang/geo/r3"

	"github.com/viam-labs/scorereloc/predict"
	"github.com/viam-labs/scorereloc/spatialmath"
)

// Keypoint is a valid image location carrying an eye-space 3D position, an
// (unused-for-scoring) colour, and a validity flag.
type Keypoint struct {
	Pos   r3.Vector
	Color [3]uint8
	Valid bool
}

// KeypointImage is a W*H raster of keypoints, raster index y*W+x.
type KeypointImage struct {
	W, H      int
	Keypoints []Keypoint
}

// At returns the keypoint at raster index idx.
func (ki KeypointImage) At(idx int) Keypoint { return ki.Keypoints[idx] }

// Len returns W*H.
func (ki KeypointImage) Len() int { return len(ki.Keypoints) }

// PredictionImage is a W*H raster of merged scene-coordinate predictions,
// one per keypoint, aligned by raster index with a KeypointImage.
type PredictionImage struct {
	W, H        int
	Predictions []predict.Prediction
}

// At returns the prediction at raster index idx.
func (pi PredictionImage) At(idx int) predict.Prediction { return pi.Predictions[idx] }

// Len returns W*H.
func (pi PredictionImage) Len() int { return len(pi.Predictions) }

// Correspondence is one (keypoint, mode) pairing used to form or refine a
// pose candidate.
type Correspondence struct {
	KeypointIdx int
	EyePos      r3.Vector // x_cam_i
	ScenePos    r3.Vector // μ_i
	ModeIdx     int
}

// Candidate is one rigid-transform hypothesis: its pose, the three
// correspondences it was generated from, its current energy (lower is
// better), and whether it is still in the surviving pool.
type Candidate struct {
	Pose             spatialmath.Pose
	Correspondences  [3]Correspondence
	Energy           float64
	InUse            bool
	originalIndex    int // for the stable-sort tie-break in the preemptive loop
}
