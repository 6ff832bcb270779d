// Пакет fetch — возобновляемая загрузка удалённого источника в staging-файл
// для зеркального приёма.
//
// Передача может быть перезапущена с байтового смещения после частичного
// сбоя: смещение обязано совпадать с текущим размером staging-файла,
// пропуск и перезапись уже записанных байт запрещены. Контрольная сумма
// всегда покрывает полное содержимое файла — байты прошлых попыток
// доворачиваются в аккумулятор перед продолжением потока.
//
// Две взаимозаменяемые стратегии: HTTP (byte-range) и RSYNC (дозапись).
// Обе соблюдают контракт смещения одинаково с точки зрения вызывающего.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/amanningeso/ngas/internal/storage/checksum"
)

// Method — стратегия загрузки, выбирается конфигурацией.
type Method string

const (
	// MethodHTTP — загрузка по HTTP с заголовком Range
	MethodHTTP Method = "HTTP"
	// MethodRSYNC — загрузка через rsync с дозаписью
	MethodRSYNC Method = "RSYNC"
)

// Result — итог одной попытки загрузки.
// При ошибке возвращается вместе с ней: BytesReceived нужен вызывающему
// для классификации сбоя (возобновляемый или окончательный).
type Result struct {
	// IoTime — время ввода-вывода попытки
	IoTime time.Duration
	// Checksum — контрольная сумма полного содержимого файла
	Checksum string
	// BytesReceived — байт получено в этой попытке
	BytesReceived int64
	// FileSize — полный размер staging-файла после попытки
	FileSize int64
}

// Fetcher — возобновляемая загрузка удалённого источника.
type Fetcher interface {
	// Fetch дозагружает uri в stagingPath начиная со смещения startByte.
	// При startByte = 0 файл создаётся заново, при startByte > 0 байты
	// дописываются в конец существующего файла.
	Fetch(ctx context.Context, uri, stagingPath string, startByte int64) (*Result, error)
}

// New создаёт загрузчик выбранной стратегии.
func New(method Method, blockSize int64, logger *slog.Logger) (Fetcher, error) {
	switch method {
	case MethodHTTP:
		return NewHTTPFetcher(blockSize, logger), nil
	case MethodRSYNC:
		return NewRsyncFetcher(blockSize, logger), nil
	default:
		return nil, fmt.Errorf("неизвестный метод загрузки: %q", method)
	}
}

// IsNoSpace определяет, вызвана ли ошибка нехваткой места на локальном
// диске (ENOSPC). Такой сбой окончателен для текущего тома.
func IsNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

// openStaging открывает staging-файл под контракт смещения:
// truncate-and-create при startByte = 0, append при startByte > 0
// с проверкой, что смещение равно текущему размеру файла.
func openStaging(stagingPath string, startByte int64) (*os.File, error) {
	if startByte == 0 {
		f, err := os.OpenFile(stagingPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания staging-файла: %w", err)
		}
		return f, nil
	}

	info, err := os.Stat(stagingPath)
	if err != nil {
		return nil, fmt.Errorf("staging-файл для возобновления недоступен: %w", err)
	}
	if info.Size() != startByte {
		return nil, fmt.Errorf("возобновление должно начинаться ровно с текущего размера файла: смещение %d, на диске %d байт", startByte, info.Size())
	}

	f, err := os.OpenFile(stagingPath, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия staging-файла для дозаписи: %w", err)
	}
	return f, nil
}

// checksumFile считает контрольную сумму готового файла целиком.
func checksumFile(path string, blockSize int64) (string, int64, error) {
	acc, n, err := checksum.FromFile(path, blockSize)
	if err != nil {
		return "", 0, err
	}
	return acc.Value(), n, nil
}

