// pull.go — открытие удалённого источника для staged-pull-приёма.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// PullOpener открывает удалённый источник архивного запроса по URI.
// Возвращает поток данных и Content-Length источника (-1 — неизвестен).
type PullOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, int64, error)
}

// HTTPPullOpener — pull-источник по http(s) с повторными попытками.
type HTTPPullOpener struct {
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewHTTPPullOpener создаёт открыватель pull-источников.
func NewHTTPPullOpener(logger *slog.Logger) *HTTPPullOpener {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	return &HTTPPullOpener{
		client: client,
		logger: logger.With(slog.String("component", "pull_opener")),
	}
}

// Open выполняет GET по URI и возвращает тело ответа как поток данных.
// Закрытие потока — обязанность вызывающего.
func (o *HTTPPullOpener) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, fmt.Errorf("некорректный pull-URI: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, 0, fmt.Errorf("неподдерживаемая схема pull-URI: %s", u.Scheme)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка создания запроса к источнику: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("источник недоступен: %w", err)
	}
	if resp.StatusCode != 200 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("источник вернул статус %d", resp.StatusCode)
	}

	o.logger.Debug("Источник открыт",
		slog.String("uri", uri),
		slog.Int64("content_length", resp.ContentLength),
	)
	return resp.Body, resp.ContentLength, nil
}
