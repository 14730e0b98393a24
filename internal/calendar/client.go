package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"backend/internal/config"
	"backend/internal/event"
	"backend/internal/logger"

	"go.uber.org/zap"
)

// Client 外部日历客户端接口
type Client interface {
	// Create 在外部日历创建事件，返回外部事件 ID
	Create(ctx context.Context, ev *event.Event) (string, error)
	// Update 更新外部日历中的事件
	Update(ctx context.Context, externalID string, ev *event.Event) error
	// Delete 删除外部日历中的事件；404/410 视为删除成功
	Delete(ctx context.Context, externalID string) error
	// QueryBusy 查询区间内是否有占用；任何错误都按"空闲"处理（fail-open），
	// 保证冲突检查永远不会阻塞创建/审批
	QueryBusy(ctx context.Context, start, end time.Time) bool
}

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	maxAttempts    = 3
	initialDelay   = 500 * time.Millisecond
)

// HTTPClient 基于 Google Calendar v3 REST 接口的实现
type HTTPClient struct {
	baseURL    string
	calendarID string
	token      string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewHTTPClient 创建外部日历客户端
func NewHTTPClient(cfg *config.CalendarConfig) *HTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL:    baseURL,
		calendarID: calendarID,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: initialDelay,
		logger:     logger.Named("calendar"),
	}
}

// apiError 外部日历接口错误
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("日历接口返回错误状态: %d (%s)", e.Status, e.Body)
}

// retryable 仅限流（429）与服务端错误（5xx）可重试，
// 客户端错误（参数、认证）重试没有意义
func retryable(err error) bool {
	if apiErr, ok := err.(*apiError); ok {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	// 网络层错误（超时、连接失败）视为瞬态
	return true
}

// withRetry 指数退避重试：500ms 起步，逐次翻倍，最多 3 次
func (c *HTTPClient) withRetry(ctx context.Context, op func() error) error {
	delay := c.retryDelay
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxAttempts || !retryable(err) {
			return err
		}
		c.logger.Warn("日历调用失败，准备重试",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// eventDateTime 日历事件时间字段：全天事件只用日期
type eventDateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
}

type eventBody struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Start       eventDateTime `json:"start"`
	End         eventDateTime `json:"end"`
	ColorID     string        `json:"colorId"`
}

func buildEventBody(ev *event.Event) eventBody {
	body := eventBody{
		Summary:     ev.Title,
		Description: ev.Description,
		ColorID:     colorID(ev.EventType),
	}
	if ev.IsAllDay {
		body.Start = eventDateTime{Date: ev.StartDate.UTC().Format("2006-01-02")}
		body.End = eventDateTime{Date: ev.EndDate.UTC().Format("2006-01-02")}
	} else {
		body.Start = eventDateTime{DateTime: ev.StartDate.UTC().Format(time.RFC3339)}
		body.End = eventDateTime{DateTime: ev.EndDate.UTC().Format(time.RFC3339)}
	}
	return body
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("创建日历请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("解析日历响应失败: %w", err)
		}
	}
	return nil
}

// Create 在外部日历创建事件
func (c *HTTPClient) Create(ctx context.Context, ev *event.Event) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(c.calendarID))
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, path, buildEventBody(ev), &result)
	})
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("日历接口未返回事件 ID")
	}
	return result.ID, nil
}

// Update 更新外部日历中的事件
func (c *HTTPClient) Update(ctx context.Context, externalID string, ev *event.Event) error {
	path := fmt.Sprintf("/calendars/%s/events/%s",
		url.PathEscape(c.calendarID), url.PathEscape(externalID))
	return c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPut, path, buildEventBody(ev), nil)
	})
}

// Delete 删除外部日历中的事件，幂等：已不存在视为成功
func (c *HTTPClient) Delete(ctx context.Context, externalID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s",
		url.PathEscape(c.calendarID), url.PathEscape(externalID))
	return c.withRetry(ctx, func() error {
		err := c.do(ctx, http.MethodDelete, path, nil, nil)
		if apiErr, ok := err.(*apiError); ok {
			if apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusGone {
				return nil
			}
		}
		return err
	})
}

// QueryBusy 查询区间占用情况，出错时按空闲处理
func (c *HTTPClient) QueryBusy(ctx context.Context, start, end time.Time) bool {
	payload := map[string]any{
		"timeMin": start.UTC().Format(time.RFC3339),
		"timeMax": end.UTC().Format(time.RFC3339),
		"items":   []map[string]string{{"id": c.calendarID}},
	}

	var result struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}

	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/freeBusy", payload, &result)
	})
	if err != nil {
		c.logger.Warn("日历占用查询失败，按空闲处理", zap.Error(err))
		return false
	}

	return len(result.Calendars[c.calendarID].Busy) > 0
}
