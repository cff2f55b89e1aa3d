package handlers

import (
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tarimai/tarim-web/internal/models"
)

type imagePanelData struct {
	PanelID  string
	Category models.CategoryInfo
	State    string

	PreviewURL template.URL
	FileName   string
	HasImage   bool
	CanAnalyze bool
	Analyzing  bool

	Result *classificationData
	Error  string

	MaxImageMB int64
}

type classificationData struct {
	ClassName        string
	Confidence       float64
	ProcessingMillis int64
	RunnerUps        []models.Prediction
}

const imageFileField = "file"

// HandleImageSelect accepts a single image uploaded in the multipart "file" field and makes it the selected
// image of the panel identified by "panel_id", discarding any previous result or error. Files that are not
// images are refused with 415, files over the size limit with 413.
func (m Main) HandleImageSelect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, m.opts.MaxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(m.opts.MaxImageBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "Image is too large", http.StatusRequestEntityTooLarge)
			return
		}
		m.logger.Warn("Failed to parse upload", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}

	panelID := r.FormValue(panelIDField)
	sess, panel, ok := m.sessions.imagePanel(r, panelID)
	if !ok {
		http.Error(w, errPanelGone.Error(), http.StatusConflict)
		return
	}

	img, status, err := m.readImage(r)
	if err != nil {
		m.logger.Warn("Image refused",
			slog.String("panelID", panelID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), status)
		return
	}

	sess.mu.Lock()
	err = panel.selectImage(img)
	sess.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	m.renderImagePanel(w, sess, panel)
}

func (m Main) readImage(r *http.Request) (models.Image, int, error) {
	file, header, err := r.FormFile(imageFileField)
	if err != nil {
		return models.Image{}, http.StatusBadRequest, errors.New("image file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, m.opts.MaxImageBytes+1))
	if err != nil {
		return models.Image{}, http.StatusBadRequest, errors.New("failed to read image")
	}
	if int64(len(data)) > m.opts.MaxImageBytes {
		return models.Image{}, http.StatusRequestEntityTooLarge, errors.New("image is too large")
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return models.Image{}, http.StatusUnsupportedMediaType, errors.New("file is not an image")
	}

	return models.Image{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}, http.StatusOK, nil
}

// HandleImageAnalyze uploads the selected image of the panel identified by "panel_id" to the classification
// model of the panel's category and renders the result. A failed analysis leaves the image selected and shows
// a generic error. Analyzing without a selected image, or while an analysis is running, is refused with 409.
func (m Main) HandleImageAnalyze(w http.ResponseWriter, r *http.Request) {
	panelID := r.FormValue(panelIDField)
	sess, panel, ok := m.sessions.imagePanel(r, panelID)
	if !ok {
		http.Error(w, errPanelGone.Error(), http.StatusConflict)
		return
	}

	sess.mu.Lock()
	img, gen, err := panel.beginAnalysis()
	sess.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	result, err := m.classifier.Classify(r.Context(), panel.category, img)
	if err != nil {
		m.logger.Error("Error from classification backend",
			slog.String("category", panel.category.ID()),
			slog.String(errLoggerKey, err.Error()))
	} else {
		m.logger.Debug("Image classified",
			slog.String("model", result.ModelName),
			slog.String("class", result.PredictedClassName),
			slog.Float64("confidence", result.Confidence))
	}

	sess.mu.Lock()
	panel.finishAnalysis(gen, result, err)
	sess.mu.Unlock()

	m.renderImagePanel(w, sess, panel)
}

// HandleImageReset clears the selected image, the result and the error of the panel identified by
// "panel_id".
func (m Main) HandleImageReset(w http.ResponseWriter, r *http.Request) {
	panelID := r.FormValue(panelIDField)
	sess, panel, ok := m.sessions.imagePanel(r, panelID)
	if !ok {
		http.Error(w, errPanelGone.Error(), http.StatusConflict)
		return
	}

	sess.mu.Lock()
	panel.reset()
	sess.mu.Unlock()

	m.renderImagePanel(w, sess, panel)
}

func (m Main) renderImagePanel(w http.ResponseWriter, sess *session, panel *imagePanel) {
	data := m.imagePanelView(sess, panel)
	if err := m.templates.ExecuteTemplate(w, "image_panel", data); err != nil {
		m.logger.Error("Failed to execute image_panel template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m Main) imagePanelView(sess *session, panel *imagePanel) imagePanelData {
	data := sess.imagePanelData(panel)
	data.MaxImageMB = m.opts.MaxImageBytes >> 20
	return data
}

// imagePanelData takes a snapshot of the panel for rendering.
func (s *session) imagePanelData(panel *imagePanel) imagePanelData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := imagePanelData{
		PanelID:    panel.id,
		Category:   panel.category.Info(),
		State:      panel.state.String(),
		HasImage:   panel.image != nil,
		CanAnalyze: panel.state == imageStateSelected,
		Analyzing:  panel.state == imageStateAnalyzing,
		Error:      panel.err,
	}
	if panel.image != nil {
		data.PreviewURL = panel.image.PreviewURL()
		data.FileName = panel.image.Name
	}
	if panel.result != nil {
		top := panel.result.Top()
		data.Result = &classificationData{
			ClassName:        top.ClassName,
			Confidence:       top.Confidence,
			ProcessingMillis: panel.result.ProcessingMillis(),
			RunnerUps:        panel.result.RunnerUps(),
		}
	}
	return data
}
