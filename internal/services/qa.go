package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tarimai/tarim-web/internal/models"
)

// QA implements the Answerer interface against the document search endpoint of the backend. Each category
// has its own route, so the same question may get a different answer depending on the category it is asked in.
type QA struct {
	api  apiClient
	topK int
}

type qaRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type qaResponse struct {
	Answer         string          `json:"answer"`
	Sources        []models.Source `json:"sources"`
	ProcessingTime float64         `json:"processing_time"`
	Status         string          `json:"status"`
}

// DefaultQATopK is the number of passages the backend is asked to search when no other value is configured.
const DefaultQATopK = 20

// NewQA creates a Q&A client. A non-positive topK falls back to DefaultQATopK.
func NewQA(opts APIOptions, topK int, logger *slog.Logger) QA {
	if topK <= 0 {
		topK = DefaultQATopK
	}
	return QA{
		api:  newAPIClient(opts, logger.With(slog.String("module", "qa"))),
		topK: topK,
	}
}

// Ask sends a single question to the search endpoint of the given category. Any non-2xx status, transport
// failure or undecodable body is returned as an error; no retry is attempted.
func (q QA) Ask(ctx context.Context, category models.Category, question string) (models.Answer, error) {
	if !category.Valid() {
		return models.Answer{}, fmt.Errorf("%w: %s", models.ErrUnknownCategory, category)
	}

	body, err := json.Marshal(qaRequest{
		Question: question,
		TopK:     q.topK,
	})
	if err != nil {
		return models.Answer{}, fmt.Errorf("error marshaling request: %w", err)
	}

	q.api.logger.Debug("Asking question",
		slog.String("category", category.ID()),
		slog.String("body", string(body)))

	resp, err := q.api.post(ctx, "/api/v1/search/pdf/"+url.PathEscape(category.ID()), "application/json",
		bytes.NewReader(body))
	if err != nil {
		return models.Answer{}, err
	}
	defer resp.Body.Close()

	var res qaResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return models.Answer{}, fmt.Errorf("error decoding response: %w", err)
	}

	return models.Answer{
		Text:           res.Answer,
		Sources:        res.Sources,
		ProcessingTime: secondsToDuration(res.ProcessingTime),
		Status:         res.Status,
	}, nil
}
