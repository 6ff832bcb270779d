// Пакет errors — единый формат HTTP-ошибок ядра приёма.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib допущен сознательно

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/amanningeso/ngas/internal/service"
)

// Машиночитаемые коды ошибок, не относящиеся к таксономии приёма.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// retryAfterSeconds — подсказка клиенту для возобновляемых сбоев.
const retryAfterSeconds = 60

// WriteArchiveError отображает класс исхода архивного запроса
// на HTTP-статус:
//
//	CONFIGURATION_REJECTED — 503 (приём отключён или сервер OFFLINE)
//	NO_VOLUME_AVAILABLE    — 503
//	DISK_EXHAUSTED         — 507
//	RESUMABLE              — 503 + Retry-After (попытку следует повторить)
//	IO_FAILURE             — 500
//	CATALOG_FAILURE        — 500
func WriteArchiveError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	switch kind {
	case service.KindConfigurationRejected, service.KindNoVolumeAvailable:
		WriteError(w, http.StatusServiceUnavailable, string(kind), err.Error())
	case service.KindDiskExhausted:
		WriteError(w, http.StatusInsufficientStorage, string(kind), err.Error())
	case service.KindResumable:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		WriteError(w, http.StatusServiceUnavailable, string(kind), err.Error())
	case service.KindIOFailure, service.KindCatalogFailure:
		WriteError(w, http.StatusInternalServerError, string(kind), err.Error())
	default:
		InternalError(w, err.Error())
	}
}
