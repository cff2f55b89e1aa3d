package handlers

import (
	"github.com/google/uuid"
	"github.com/tarimai/tarim-web/internal/models"
)

type imageState int

const (
	imageStateEmpty imageState = iota
	imageStateSelected
	imageStateAnalyzing
	imageStateResult
)

func (s imageState) String() string {
	switch s {
	case imageStateEmpty:
		return "empty"
	case imageStateSelected:
		return "selected"
	case imageStateAnalyzing:
		return "analyzing"
	case imageStateResult:
		return "result"
	}
	return "unknown"
}

// imagePanel is one mounted instance of the image analysis panel. It owns the selected image and the result
// of its last analysis; nothing is shared with the chat panel. All fields except id and category are guarded
// by the owning session's mutex.
type imagePanel struct {
	id       string
	category models.Category

	state  imageState
	image  *models.Image
	result *models.Classification
	err    string

	// generation is bumped whenever the selected image is replaced or cleared, so that the result of an
	// analysis started for a previous image is not applied.
	generation int
}

func newImagePanel(category models.Category) *imagePanel {
	return &imagePanel{
		id:       uuid.New().String(),
		category: category,
	}
}

// selectImage replaces the selected image, clearing any previous result or error.
func (p *imagePanel) selectImage(img models.Image) error {
	if p.state == imageStateAnalyzing {
		return errPanelBusy
	}
	p.image = &img
	p.result = nil
	p.err = ""
	p.state = imageStateSelected
	p.generation++
	return nil
}

// beginAnalysis moves the panel to analyzing and returns the image to upload.
func (p *imagePanel) beginAnalysis() (models.Image, int, error) {
	if p.state != imageStateSelected || p.image == nil {
		return models.Image{}, 0, errPanelBusy
	}
	p.state = imageStateAnalyzing
	p.err = ""
	return *p.image, p.generation, nil
}

// finishAnalysis applies the outcome of the analysis started at generation. On failure the image stays
// selected so that the analysis can be retried.
func (p *imagePanel) finishAnalysis(generation int, result models.Classification, err error) {
	if generation != p.generation || p.state != imageStateAnalyzing {
		return
	}
	if err != nil {
		p.state = imageStateSelected
		p.err = models.ImageAnalysisError
		return
	}
	p.result = &result
	p.state = imageStateResult
}

// reset clears the image, the result and the error from any state.
func (p *imagePanel) reset() {
	p.image = nil
	p.result = nil
	p.err = ""
	p.state = imageStateEmpty
	p.generation++
}
