package reloc

import (
	"github.com/golang/geo/r3"

	"github.com/viam-labs/scorereloc/forest"
	"github.com/viam-labs/scorereloc/predict"
)

func identityInvCov() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func singleModePrediction(mean r3.Vector) predict.Prediction {
	return predict.Prediction{Modes: []forest.Mode{
		{Mean: mean, InvCov: identityInvCov(), LogDetCov: 0, N: 10},
	}}
}

func buildFrame(eyePositions []r3.Vector, scenePositions []r3.Vector) (KeypointImage, PredictionImage) {
	n := len(eyePositions)
	kps := make([]Keypoint, n)
	preds := make([]predict.Prediction, n)
	for i := range eyePositions {
		kps[i] = Keypoint{Pos: eyePositions[i], Valid: true}
		preds[i] = singleModePrediction(scenePositions[i])
	}
	return KeypointImage{W: n, H: 1, Keypoints: kps}, PredictionImage{W: n, H: 1, Predictions: preds}
}

func buildUnusableFrame(n int) (KeypointImage, PredictionImage) {
	kps := make([]Keypoint, n)
	preds := make([]predict.Prediction, n)
	for i := range kps {
		kps[i] = Keypoint{Pos: r3.Vector{X: float64(i)}, Valid: true}
		preds[i] = predict.Prediction{} // empty, unusable
	}
	return KeypointImage{W: n, H: 1, Keypoints: kps}, PredictionImage{W: n, H: 1, Predictions: preds}
}
