package toxicity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/modguard/modguard/internal/config"
	apperrors "github.com/modguard/modguard/internal/errors"
)

// Classifier calls the toxicity inference service over HTTP. The model
// itself lives behind that service; this client only carries text one way
// and a (toxic, probability) pair back.
type Classifier struct {
	apiURL     string
	httpClient *http.Client
}

func New(cfg config.Toxicity) *Classifier {
	return &Classifier{
		apiURL:     cfg.APIURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Classifier) Classify(ctx context.Context, text string) (bool, float64, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false, 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return false, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, 0, errors.Wrap(apperrors.ErrCollaboratorUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, 0, errors.Wrapf(apperrors.ErrCollaboratorUnavailable, "unexpected status code %d", resp.StatusCode)
	}

	var result struct {
		Toxic       bool    `json:"toxic"`
		Probability float64 `json:"probability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, 0, errors.Wrap(apperrors.ErrCollaboratorUnavailable, err.Error())
	}
	return result.Toxic, result.Probability, nil
}
