package vkads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIBase = "https://api.vk.com/method"
	apiVersion     = "5.199"

	// statsChunkSize caps campaign ids per ads.getStatistics request.
	statsChunkSize = 200
)

// Client calls the VK ads API with a pre-obtained OAuth access token.
type Client struct {
	apiBase     string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a VK ads API client.
func NewClient(accessToken string, logger *zap.Logger) *Client {
	return &Client{
		apiBase:     defaultAPIBase,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// apiError is the error object VK returns inside an otherwise-200 response.
type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vk error %d: %s", e.Code, e.Message)
}

// Campaign is one ads campaign row from ads.getCampaigns.
type Campaign struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// StatsRow is one statistics row from ads.getStatistics.
type StatsRow struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Stats json.RawMessage `json:"stats"`
}

// call invokes one VK API method and unwraps the response envelope.
func (c *Client) call(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("v", apiVersion)
	form.Set("access_token", c.accessToken)
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create vk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vk %s: HTTP %d", method, resp.StatusCode)
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
		Error    *apiError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode vk response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Response, nil
}

// GetCampaigns lists ad campaigns for the account.
func (c *Client) GetCampaigns(ctx context.Context, accountID string) ([]Campaign, error) {
	raw, err := c.call(ctx, "ads.getCampaigns", map[string]string{
		"account_id": accountID,
	})
	if err != nil {
		return nil, err
	}

	var campaigns []Campaign
	if err := json.Unmarshal(raw, &campaigns); err != nil {
		return nil, fmt.Errorf("failed to parse campaigns: %w", err)
	}
	return campaigns, nil
}

// GetStatistics pulls day-period statistics for the given campaign ids.
// The caller is responsible for keeping len(ids) within statsChunkSize.
func (c *Client) GetStatistics(ctx context.Context, accountID string, ids []int64) ([]StatsRow, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = strconv.FormatInt(id, 10)
	}

	raw, err := c.call(ctx, "ads.getStatistics", map[string]string{
		"account_id": accountID,
		"ids_type":   "campaign",
		"ids":        strings.Join(strIDs, ","),
		"period":     "day",
		"date_from":  "0",
		"date_to":    "0",
	})
	if err != nil {
		return nil, err
	}

	var rows []StatsRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse statistics: %w", err)
	}
	return rows, nil
}

// PullResult summarizes one daily stats pull.
type PullResult struct {
	AccountID      string     `json:"account_id"`
	CampaignsCount int        `json:"campaigns_count"`
	StatsRows      int        `json:"stats_rows"`
	Sample         []StatsRow `json:"sample,omitempty"`
}

// PullDailyStats lists the account's campaigns and fetches today's
// statistics in chunks. The sample holds the first rows for eyeballing the
// payload shape.
func (c *Client) PullDailyStats(ctx context.Context, accountID string) (*PullResult, error) {
	campaigns, err := c.GetCampaigns(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(campaigns))
	for i, camp := range campaigns {
		ids[i] = camp.ID
	}

	var rows []StatsRow
	for _, chunk := range chunkIDs(ids, statsChunkSize) {
		part, err := c.GetStatistics(ctx, accountID, chunk)
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}

	c.logger.Info("vk stats pulled",
		zap.String("account_id", accountID),
		zap.Int("campaigns", len(campaigns)),
		zap.Int("stats_rows", len(rows)),
	)

	sample := rows
	if len(sample) > 5 {
		sample = sample[:5]
	}

	return &PullResult{
		AccountID:      accountID,
		CampaignsCount: len(campaigns),
		StatsRows:      len(rows),
		Sample:         sample,
	}, nil
}

// chunkIDs splits ids into slices of at most size elements.
func chunkIDs(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]int64
	for size < len(ids) {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}
