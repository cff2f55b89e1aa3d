package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/tarimai/tarim-web/internal/models"
)

// Classifier implements the image Classifier interface against the model prediction endpoint of the
// backend. The model serving a request is picked from the category of the request.
type Classifier struct {
	api  apiClient
	topK int
}

type classifierPrediction struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

type classifierResponse struct {
	ModelName          string                 `json:"model_name"`
	PredictedClassID   int                    `json:"predicted_class_id"`
	PredictedClassName string                 `json:"predicted_class_name"`
	Confidence         float64                `json:"confidence"`
	AllPredictions     []classifierPrediction `json:"all_predictions"`
	ImageSize          [2]int                 `json:"image_size"`
	ProcessedSize      [2]int                 `json:"processed_size"`
	ProcessingTime     float64                `json:"processing_time"`
	Status             string                 `json:"status"`
}

const (
	// DefaultClassifierTopK is the number of predictions requested when no other value is configured.
	DefaultClassifierTopK = 5

	classifierFileField = "file"
	classifierTopKField = "top_k"
)

// NewClassifier creates an image classification client. A non-positive topK falls back to
// DefaultClassifierTopK.
func NewClassifier(opts APIOptions, topK int, logger *slog.Logger) Classifier {
	if topK <= 0 {
		topK = DefaultClassifierTopK
	}
	return Classifier{
		api:  newAPIClient(opts, logger.With(slog.String("module", "classifier"))),
		topK: topK,
	}
}

// Classify uploads the image to the model of the given category and returns the ranked predictions.
func (c Classifier) Classify(
	ctx context.Context,
	category models.Category,
	image models.Image,
) (models.Classification, error) {
	modelName, err := category.ModelName()
	if err != nil {
		return models.Classification{}, err
	}

	body, contentType, err := c.multipartBody(image)
	if err != nil {
		return models.Classification{}, err
	}

	c.api.logger.Debug("Classifying image",
		slog.String("model", modelName),
		slog.String("file", image.Name),
		slog.Int("size", len(image.Data)))

	resp, err := c.api.post(ctx, "/api/v1/models/"+url.PathEscape(modelName)+"/predict/file", contentType, body)
	if err != nil {
		return models.Classification{}, err
	}
	defer resp.Body.Close()

	var res classifierResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return models.Classification{}, fmt.Errorf("error decoding response: %w", err)
	}

	preds := make([]models.Prediction, len(res.AllPredictions))
	for i, p := range res.AllPredictions {
		preds[i] = models.Prediction{
			ClassID:    p.ClassID,
			ClassName:  p.ClassName,
			Confidence: p.Confidence,
		}
	}

	return models.Classification{
		ModelName:          res.ModelName,
		PredictedClassID:   res.PredictedClassID,
		PredictedClassName: res.PredictedClassName,
		Confidence:         res.Confidence,
		AllPredictions:     preds,
		ImageSize:          res.ImageSize,
		ProcessedSize:      res.ProcessedSize,
		ProcessingTime:     secondsToDuration(res.ProcessingTime),
		Status:             res.Status,
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c Classifier) multipartBody(image models.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := image.Name
	if name == "" {
		name = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		classifierFileField, quoteEscaper.Replace(name)))
	h.Set("Content-Type", image.ContentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("error creating file part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("error writing file part: %w", err)
	}
	if err := w.WriteField(classifierTopKField, strconv.Itoa(c.topK)); err != nil {
		return nil, "", fmt.Errorf("error writing top_k field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
