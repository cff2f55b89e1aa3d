package models

import (
	"fmt"
	"time"
)

// Prediction is one classification candidate returned by the image-analysis endpoint.
type Prediction struct {
	ClassID    int
	ClassName  string
	Confidence float64
}

// Classification is the decoded result of an image-analysis call. AllPredictions is ranked with the highest
// confidence first.
type Classification struct {
	ModelName          string
	PredictedClassID   int
	PredictedClassName string
	Confidence         float64
	AllPredictions     []Prediction
	ImageSize          [2]int
	ProcessedSize      [2]int
	ProcessingTime     time.Duration
	Status             string
}

// maxRunnerUps is how many candidates after the top one are shown.
const maxRunnerUps = 3

// ImageAnalysisError is the banner shown when the image-analysis call fails for any reason.
const ImageAnalysisError = "Görüntü analizi sırasında bir hata oluştu. Lütfen tekrar deneyin."

// Top returns the predicted class of the classification.
func (c Classification) Top() Prediction {
	return Prediction{
		ClassID:    c.PredictedClassID,
		ClassName:  c.PredictedClassName,
		Confidence: c.Confidence,
	}
}

// RunnerUps returns the candidates ranked 2nd to 4th, or fewer if the endpoint returned fewer.
func (c Classification) RunnerUps() []Prediction {
	if len(c.AllPredictions) <= 1 {
		return nil
	}
	end := min(len(c.AllPredictions), 1+maxRunnerUps)
	return c.AllPredictions[1:end]
}

// Percent formats a confidence in [0,1] as a percentage with one decimal, e.g. "90.0".
func Percent(confidence float64) string {
	return fmt.Sprintf("%.1f", confidence*100)
}

// ProcessingMillis returns the processing time rounded to whole milliseconds.
func (c Classification) ProcessingMillis() int64 {
	return c.ProcessingTime.Round(time.Millisecond).Milliseconds()
}
