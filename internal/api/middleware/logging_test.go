package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// TestRequestLogger проверяет перехват статуса и уровень логирования.
func TestRequestLogger(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"успех", http.StatusCreated, "INFO"},
		{"ошибка клиента", http.StatusBadRequest, "WARN"},
		{"ошибка сервера", http.StatusInternalServerError, "ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte("ответ"))
			}))

			req := httptest.NewRequest(http.MethodPut, "/archive", strings.NewReader("data"))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Errorf("статус не дошёл до клиента: %d", rec.Code)
			}

			line := buf.String()
			if !strings.Contains(line, "level="+tc.wantLevel) {
				t.Errorf("ожидался уровень %s, запись: %s", tc.wantLevel, line)
			}
			if !strings.Contains(line, "status="+strconv.Itoa(tc.status)) {
				t.Errorf("статус не записан в лог: %s", line)
			}
		})
	}
}
