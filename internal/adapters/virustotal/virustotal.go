package virustotal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modguard/modguard/internal/config"
	apperrors "github.com/modguard/modguard/internal/errors"
)

const scannerMaxRetries = 3

// Scanner is the URL-reputation collaborator backed by the VirusTotal v3
// API. A URL not yet analyzed is submitted for scanning and reported as
// pending; pending and unknown both map to "not malicious" so an
// unfinished analysis never blocks a message.
type Scanner struct {
	apiKey     string
	baseURL    string
	httpClient *retryablehttp.Client
}

func New(cfg config.VirusTotal) *Scanner {
	client := retryablehttp.NewClient()
	client.RetryMax = scannerMaxRetries
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil
	return &Scanner{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
	}
}

func (s *Scanner) CheckURL(ctx context.Context, target string) (bool, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/urls/%s", s.baseURL, urlID(target)), nil)
	if err != nil {
		return false, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, "", errors.Wrap(apperrors.ErrCollaboratorUnavailable, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown URL: queue analysis, let this message through.
		s.submit(ctx, target)
		return false, "analysis pending", nil
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return false, "", errors.Wrapf(apperrors.ErrCollaboratorUnavailable, "unexpected status code %d", resp.StatusCode)
	}

	var report struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats map[string]int `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return false, "", errors.Wrap(apperrors.ErrCollaboratorUnavailable, err.Error())
	}

	stats := report.Data.Attributes.LastAnalysisStats
	malicious := stats["malicious"]
	total := 0
	for _, n := range stats {
		total += n
	}
	return malicious > 0, fmt.Sprintf("malicious: %d/%d", malicious, total), nil
}

// submit sends the URL for analysis. Best-effort: a failed submission only
// delays the first real verdict to a later message.
func (s *Scanner) submit(ctx context.Context, target string) {
	form := url.Values{"url": {target}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("x-apikey", s.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.WithFields(log.Fields{
			"context": "virustotal",
			"url":     target,
			"error":   err.Error(),
		}).Warn("failed to submit url for analysis")
		return
	}
	resp.Body.Close()
}

// urlID encodes a URL the way the v3 API identifies it: unpadded
// URL-safe base64.
func urlID(target string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(target))
}
