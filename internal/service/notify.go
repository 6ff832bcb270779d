// notify.go — уведомление подписчика об успешно принятых файлах.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/amanningeso/ngas/internal/domain/model"
)

// Notifier сообщает внешнему подписчику о принятых файлах.
// Уведомление выполняется после коммита и не влияет на исход запроса.
type Notifier interface {
	NotifyIngested(ctx context.Context, records []*model.FileRecord)
}

// NopNotifier — заглушка для конфигурации без подписчика.
type NopNotifier struct{}

func (NopNotifier) NotifyIngested(context.Context, []*model.FileRecord) {}

// HTTPNotifier отправляет подписчику POST с JSON-списком принятых файлов.
type HTTPNotifier struct {
	url    string
	client *retryablehttp.Client
	logger *slog.Logger
}

// ingestedFile — элемент полезной нагрузки уведомления.
type ingestedFile struct {
	FileID        string    `json:"file_id"`
	FileVersion   int       `json:"file_version"`
	DiskID        string    `json:"disk_id"`
	FileSize      int64     `json:"file_size"`
	Checksum      string    `json:"checksum"`
	IngestionDate time.Time `json:"ingestion_date"`
}

// NewHTTPNotifier создаёт уведомитель с повторными попытками доставки.
func NewHTTPNotifier(url string, logger *slog.Logger) *HTTPNotifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	return &HTTPNotifier{
		url:    url,
		client: client,
		logger: logger.With(slog.String("component", "notifier")),
	}
}

// NotifyIngested доставляет уведомление подписчику. Сбой доставки
// только логируется: файлы уже приняты.
func (n *HTTPNotifier) NotifyIngested(ctx context.Context, records []*model.FileRecord) {
	if len(records) == 0 {
		return
	}

	payload := make([]ingestedFile, 0, len(records))
	for _, r := range records {
		payload = append(payload, ingestedFile{
			FileID:        r.FileID,
			FileVersion:   r.FileVersion,
			DiskID:        r.DiskID,
			FileSize:      r.FileSize,
			Checksum:      r.Checksum,
			IngestionDate: r.IngestionDate,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Ошибка сериализации уведомления", slog.String("error", err.Error()))
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("Ошибка создания запроса уведомления", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("Уведомление подписчика не доставлено",
			slog.String("url", n.url),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("Подписчик отклонил уведомление",
			slog.String("url", n.url),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)),
		)
		return
	}

	n.logger.Debug("Уведомление доставлено",
		slog.String("url", n.url),
		slog.Int("files", len(payload)),
	)
}
