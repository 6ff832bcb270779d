package fetch

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// rangeServer отдаёт payload с поддержкой заголовка Range: bytes=N-.
func rangeServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload)
			return
		}

		offStr := strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-")
		off, err := strconv.ParseInt(offStr, 10, 64)
		if err != nil || off < 0 || off > int64(len(payload)) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", off, len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[off:])
	}))
}

func wholeChecksum(payload []byte) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE(payload)), 10)
}

// TestHTTPFetch_Fresh проверяет загрузку с нулевого смещения.
func TestHTTPFetch_Fresh(t *testing.T) {
	payload := bytes.Repeat([]byte("data"), 500)
	srv := rangeServer(t, payload)
	defer srv.Close()

	stagingPath := filepath.Join(t.TempDir(), "f1___v1")
	f := NewHTTPFetcher(256, testLogger())

	res, err := f.Fetch(context.Background(), srv.URL, stagingPath, 0)
	if err != nil {
		t.Fatalf("ожидалась успешная загрузка, получена ошибка: %v", err)
	}

	if res.BytesReceived != int64(len(payload)) {
		t.Errorf("ожидалось %d байт, получено %d", len(payload), res.BytesReceived)
	}
	if res.FileSize != int64(len(payload)) {
		t.Errorf("ожидался размер файла %d, получено %d", len(payload), res.FileSize)
	}
	if res.Checksum != wholeChecksum(payload) {
		t.Errorf("ожидалась сумма %s, получено %s", wholeChecksum(payload), res.Checksum)
	}

	data, err := os.ReadFile(stagingPath)
	if err != nil {
		t.Fatalf("staging-файл не читается: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("содержимое staging-файла не совпадает с источником")
	}
}

// TestHTTPFetch_Resume проверяет возобновление: после дозагрузки
// контрольная сумма равна сумме файла целиком.
func TestHTTPFetch_Resume(t *testing.T) {
	payload := bytes.Repeat([]byte("data"), 500)
	srv := rangeServer(t, payload)
	defer srv.Close()

	// Частичный staging-файл от прошлой попытки
	stagingPath := filepath.Join(t.TempDir(), "f1___v1")
	const partial = 700
	if err := os.WriteFile(stagingPath, payload[:partial], 0o640); err != nil {
		t.Fatalf("не удалось создать частичный файл: %v", err)
	}

	f := NewHTTPFetcher(256, testLogger())
	res, err := f.Fetch(context.Background(), srv.URL, stagingPath, partial)
	if err != nil {
		t.Fatalf("ожидалось успешное возобновление, получена ошибка: %v", err)
	}

	if res.BytesReceived != int64(len(payload)-partial) {
		t.Errorf("ожидалось %d байт в этой попытке, получено %d", len(payload)-partial, res.BytesReceived)
	}
	if res.FileSize != int64(len(payload)) {
		t.Errorf("ожидался полный размер %d, получено %d", len(payload), res.FileSize)
	}

	// Сумма покрывает файл целиком, а не только дозагруженный хвост
	if res.Checksum != wholeChecksum(payload) {
		t.Errorf("ожидалась сумма целиком %s, получено %s", wholeChecksum(payload), res.Checksum)
	}

	data, _ := os.ReadFile(stagingPath)
	if !bytes.Equal(data, payload) {
		t.Error("содержимое после возобновления не совпадает с источником")
	}
}

// TestHTTPFetch_ResumeOffsetMismatch проверяет отказ, когда смещение
// не равно текущему размеру staging-файла.
func TestHTTPFetch_ResumeOffsetMismatch(t *testing.T) {
	payload := []byte("0123456789")
	srv := rangeServer(t, payload)
	defer srv.Close()

	stagingPath := filepath.Join(t.TempDir(), "f1___v1")
	if err := os.WriteFile(stagingPath, payload[:4], 0o640); err != nil {
		t.Fatalf("не удалось создать частичный файл: %v", err)
	}

	f := NewHTTPFetcher(256, testLogger())
	if _, err := f.Fetch(context.Background(), srv.URL, stagingPath, 7); err == nil {
		t.Fatal("ожидалась ошибка несовпадения смещения")
	}
}

// TestHTTPFetch_NoRangeSupport проверяет отказ при возобновлении,
// когда источник не поддерживает Range.
func TestHTTPFetch_NoRangeSupport(t *testing.T) {
	payload := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Источник игнорирует Range и всегда отвечает 200
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	stagingPath := filepath.Join(t.TempDir(), "f1___v1")
	if err := os.WriteFile(stagingPath, payload[:4], 0o640); err != nil {
		t.Fatalf("не удалось создать частичный файл: %v", err)
	}

	f := NewHTTPFetcher(256, testLogger())
	_, err := f.Fetch(context.Background(), srv.URL, stagingPath, 4)
	if err == nil {
		t.Fatal("ожидалась ошибка: источник не поддержал возобновление")
	}

	// Уже принятые байты не перезаписаны
	data, _ := os.ReadFile(stagingPath)
	if !bytes.Equal(data, payload[:4]) {
		t.Error("частичный staging-файл повреждён")
	}
}

// TestOpenStaging_Truncate проверяет пересоздание файла при нулевом смещении.
func TestOpenStaging_Truncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("old"), 0o640); err != nil {
		t.Fatalf("не удалось создать файл: %v", err)
	}

	f, err := openStaging(path, 0)
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()

	info, _ := os.Stat(path)
	if info.Size() != 0 {
		t.Errorf("ожидался пустой файл после truncate, размер %d", info.Size())
	}
}

// TestIsNoSpace проверяет распознавание ENOSPC в обёрнутых ошибках.
func TestIsNoSpace(t *testing.T) {
	wrapped := fmt.Errorf("ошибка записи: %w", syscall.ENOSPC)
	if !IsNoSpace(wrapped) {
		t.Error("ожидалось распознавание обёрнутого ENOSPC")
	}
	if IsNoSpace(fmt.Errorf("другая ошибка")) {
		t.Error("ложное срабатывание на посторонней ошибке")
	}
}

// TestNew_UnknownMethod проверяет отказ на неизвестной стратегии.
func TestNew_UnknownMethod(t *testing.T) {
	if _, err := New("FTP", 256, testLogger()); err == nil {
		t.Fatal("ожидалась ошибка для неизвестного метода")
	}
}
