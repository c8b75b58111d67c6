// Package bot pulls the chatbot backend tables through its SQL-over-HTTP
// endpoint.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"journaling-go/internal/collectors"
	"journaling-go/internal/config"
	"journaling-go/internal/frame"

	"go.uber.org/zap"
)

// InfoFile records when the tables were last pulled.
const InfoFile = "info.txt"

var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Client queries the bot backend.
type Client struct {
	url        string
	authKey    string
	pageSize   int
	tables     []string
	httpClient *http.Client
	retry      collectors.Retry
	log        *zap.Logger
}

// NewClient creates a Client from the bot configuration.
func NewClient(conf config.BotConfig, log *zap.Logger) *Client {
	return &Client{
		url:        conf.SQLURL,
		authKey:    conf.AuthKey,
		pageSize:   conf.PageSize,
		tables:     conf.Tables,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      collectors.DefaultRetry,
		log:        log.Named("bot"),
	}
}

// WithRetry overrides the rate-limit policy.
func (c *Client) WithRetry(r collectors.Retry) *Client {
	c.retry = r
	return c
}

func (c *Client) query(ctx context.Context, q string) ([]map[string]any, error) {
	body, err := json.Marshal(map[string]string{"query": q})
	if err != nil {
		return nil, err
	}
	resp, err := collectors.Do(ctx, c.httpClient, c.retry, c.log, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("auth", c.authKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bot query failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, collectors.StatusError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode bot response: %w", err)
	}
	return rows, nil
}

// Count returns the number of rows in table.
func (c *Client) Count(ctx context.Context, table string) (int, error) {
	rows, err := c.query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("empty COUNT response")
	}
	n, ok := rows[0]["COUNT(*)"].(json.Number)
	if !ok {
		return 0, fmt.Errorf("unexpected COUNT response: %v", rows[0])
	}
	total, err := n.Int64()
	return int(total), err
}

// FetchTable reads a whole table, page by page when it is larger than one
// page. Failed pages are logged and skipped.
func (c *Client) FetchTable(ctx context.Context, table string) (*frame.Frame, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	total, err := c.Count(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	log := c.log.With(zap.String("table", table))

	if total < c.pageSize {
		rows, err := c.query(ctx, fmt.Sprintf("SELECT * FROM %s", table))
		if err != nil {
			return nil, err
		}
		log.Info("Table fetched", zap.Int("rows", len(rows)))
		return toFrame(rows), nil
	}

	pages := (total + c.pageSize - 1) / c.pageSize
	var all []map[string]any
	for page := 0; page < pages; page++ {
		q := fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", table, c.pageSize, page*c.pageSize)
		rows, err := c.query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("Page failed, skipping", zap.Int("page", page), zap.Error(err))
			continue
		}
		all = append(all, rows...)
		log.Debug("Page fetched", zap.Int("page", page+1), zap.Int("retrieved", len(all)))
	}
	if len(all) != total {
		log.Warn("Row count mismatch", zap.Int("expected", total), zap.Int("retrieved", len(all)))
	}
	log.Info("Table fetched", zap.Int("rows", len(all)), zap.Int("pages", pages))
	return toFrame(all), nil
}

// PullAll writes every configured table to dir as {table}.csv and stamps
// info.txt.
func (c *Client) PullAll(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, table := range c.tables {
		f, err := c.FetchTable(ctx, table)
		if err != nil {
			return fmt.Errorf("pull %s: %w", table, err)
		}
		if err := f.WriteCSV(filepath.Join(dir, table+".csv")); err != nil {
			return err
		}
	}
	stamp := time.Now().Format("2006-01-02 15:04:05.000000")
	if err := os.WriteFile(filepath.Join(dir, InfoFile), []byte(stamp), 0o644); err != nil {
		return err
	}
	c.log.Info("All tables saved to CSV files", zap.String("dir", dir), zap.Int("tables", len(c.tables)))
	return nil
}

// toFrame uses the sorted union of row keys as columns.
func toFrame(rows []map[string]any) *frame.Frame {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	out := make([][]string, len(rows))
	for i, r := range rows {
		vals := make([]string, len(cols))
		for j, col := range cols {
			vals[j] = cell(r[col])
		}
		out[i] = vals
	}
	return frame.New(cols, out)
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return frame.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
