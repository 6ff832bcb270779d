package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/amanningeso/ngas/internal/storage/checksum"
)

// HTTPFetcher — загрузка по HTTP. Возобновление через заголовок
// Range: bytes=N-; источник обязан ответить 206 Partial Content,
// иначе продолжение невозможно без перезаписи уже принятых байт.
type HTTPFetcher struct {
	client    *retryablehttp.Client
	blockSize int64
	logger    *slog.Logger
}

// NewHTTPFetcher создаёт HTTP-загрузчик. Ретраи применяются только
// до получения ответа: начатый поток тела при сбое не перезапрашивается,
// сбой передачи классифицирует вызывающий.
func NewHTTPFetcher(blockSize int64, logger *slog.Logger) *HTTPFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	return &HTTPFetcher{
		client:    client,
		blockSize: blockSize,
		logger:    logger.With(slog.String("component", "http_fetcher")),
	}
}

// Fetch реализует Fetcher.
func (h *HTTPFetcher) Fetch(ctx context.Context, uri, stagingPath string, startByte int64) (*Result, error) {
	res := &Result{}

	acc := checksum.New()
	if startByte > 0 {
		seeded, n, err := checksum.FromFile(stagingPath, h.blockSize)
		if err != nil {
			return res, fmt.Errorf("ошибка чтения частичного staging-файла: %w", err)
		}
		if n != startByte {
			return res, fmt.Errorf("возобновление должно начинаться ровно с текущего размера файла: смещение %d, на диске %d байт", startByte, n)
		}
		acc = seeded
	}

	f, err := openStaging(stagingPath, startByte)
	if err != nil {
		return res, err
	}
	defer f.Close()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return res, fmt.Errorf("ошибка формирования запроса %s: %w", uri, err)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("ошибка запроса источника %s: %w", uri, err)
	}
	defer resp.Body.Close()

	switch {
	case startByte > 0 && resp.StatusCode != http.StatusPartialContent:
		return res, fmt.Errorf("источник не поддержал возобновление со смещения %d: статус %d", startByte, resp.StatusCode)
	case startByte == 0 && resp.StatusCode != http.StatusOK:
		return res, fmt.Errorf("источник вернул статус %d", resp.StatusCode)
	}

	written, err := io.CopyBuffer(io.MultiWriter(f, acc), resp.Body, make([]byte, h.blockSize))
	res.BytesReceived = written
	if err != nil {
		_ = f.Sync()
		return res, fmt.Errorf("ошибка передачи данных из %s: %w", uri, err)
	}

	if err := f.Sync(); err != nil {
		return res, fmt.Errorf("ошибка fsync: %w", err)
	}

	res.IoTime = time.Since(start)
	res.Checksum = acc.Value()
	res.FileSize = startByte + written

	h.logger.Debug("Загрузка завершена",
		slog.String("uri", uri),
		slog.Int64("start_byte", startByte),
		slog.Int64("bytes_received", written),
		slog.String("checksum", res.Checksum),
	)
	return res, nil
}
