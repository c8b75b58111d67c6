// Package qualtrics exports survey responses from the survey vendor API.
package qualtrics

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"journaling-go/internal/collectors"
	"journaling-go/internal/config"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrExportFailed is returned when the vendor reports a failed export job.
var ErrExportFailed = errors.New("export failed")

// Client drives the export-responses workflow.
type Client struct {
	baseURL    string
	format     string
	poll       time.Duration
	httpClient *http.Client
	retry      collectors.Retry
	log        *zap.Logger
}

// BaseURL resolves the API host from the data center unless overridden.
func BaseURL(conf config.QualtricsConfig) string {
	if conf.BaseURL != "" {
		return strings.TrimRight(conf.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.qualtrics.com", conf.DataCenter)
}

// NewClient creates a Client whose transport fetches and refreshes a
// client-credentials token.
func NewClient(ctx context.Context, conf config.QualtricsConfig, log *zap.Logger) *Client {
	base := BaseURL(conf)
	cc := clientcredentials.Config{
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		TokenURL:     base + "/oauth2/token",
		Scopes:       []string{"manage:all"},
	}
	format := conf.Format
	if format == "" {
		format = "csv"
	}
	poll := time.Duration(conf.PollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		baseURL:    base,
		format:     format,
		poll:       poll,
		httpClient: cc.Client(ctx),
		retry:      collectors.DefaultRetry,
		log:        log.Named("qualtrics"),
	}
}

// WithPollInterval overrides the progress polling interval.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	c.poll = d
	return c
}

type envelope struct {
	Result struct {
		ProgressID string `json:"progressId"`
		Status     string `json:"status"`
		FileID     string `json:"fileId"`
	} `json:"result"`
}

func (c *Client) exportURL(surveyID string) string {
	return fmt.Sprintf("%s/API/v3/surveys/%s/export-responses/", c.baseURL, surveyID)
}

func (c *Client) do(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	resp, err := collectors.Do(ctx, c.httpClient, c.retry, c.log, func() (*http.Request, error) {
		req, err := http.NewRequest(method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, collectors.StatusError(resp)
	}
	return resp, nil
}

func (c *Client) decode(ctx context.Context, method, url string, payload any) (envelope, error) {
	var env envelope
	resp, err := c.do(ctx, method, url, payload)
	if err != nil {
		return env, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return env, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

// Export starts an export of surveyID, waits for it, downloads the archive
// and unpacks it into targetDir. Existing files of the same name are
// replaced. It returns the extracted file names.
func (c *Client) Export(ctx context.Context, surveyID, targetDir string) ([]string, error) {
	base := c.exportURL(surveyID)
	log := c.log.With(zap.String("survey_id", surveyID))

	start, err := c.decode(ctx, http.MethodPost, base, map[string]any{"format": c.format, "useLabels": true})
	if err != nil {
		return nil, fmt.Errorf("start export: %w", err)
	}
	log.Info("Export started", zap.String("progress_id", start.Result.ProgressID))

	fileID, err := c.wait(ctx, base+start.Result.ProgressID)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, base+fileID+"/file", nil)
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	names, err := Unzip(data, targetDir)
	if err != nil {
		return nil, err
	}
	log.Info("Export downloaded", zap.Strings("files", names), zap.String("dir", targetDir))
	return names, nil
}

func (c *Client) wait(ctx context.Context, progressURL string) (string, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		env, err := c.decode(ctx, http.MethodGet, progressURL, nil)
		if err != nil {
			return "", fmt.Errorf("check export progress: %w", err)
		}
		switch env.Result.Status {
		case "complete":
			return env.Result.FileID, nil
		case "failed":
			return "", ErrExportFailed
		}
		c.log.Debug("Export in progress", zap.String("status", env.Result.Status))
	}
}

// ExportAll exports every configured survey, ordered by stage name.
func (c *Client) ExportAll(ctx context.Context, surveys map[string]string, targetDir string) error {
	stages := make([]string, 0, len(surveys))
	for stage := range surveys {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		if _, err := c.Export(ctx, surveys[stage], targetDir); err != nil {
			return fmt.Errorf("export %s: %w", stage, err)
		}
	}
	return nil
}

// Unzip extracts a zip archive into dir, replacing existing files. Entries
// that would land outside dir are rejected.
func Unzip(data []byte, dir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	root := filepath.Clean(dir) + string(os.PathSeparator)
	var names []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(dir, zf.Name)
		if !strings.HasPrefix(dest, root) {
			return nil, fmt.Errorf("archive entry %q escapes %s", zf.Name, dir)
		}
		if err := extract(zf, dest); err != nil {
			return nil, err
		}
		names = append(names, zf.Name)
	}
	return names, nil
}

func extract(zf *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
