// archive.go — обработчики команд приёма: ARCHIVE, CARCHIVE, MIRRARCHIVE.
package handlers

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/amanningeso/ngas/internal/api/errors"
	"github.com/amanningeso/ngas/internal/domain/model"
	"github.com/amanningeso/ngas/internal/service"
)

// defaultFormat — MIME-тип по умолчанию, когда клиент его не передал.
const defaultFormat = "application/octet-stream"

// ArchiveHandler реализует endpoints приёма данных.
type ArchiveHandler struct {
	archive *service.ArchiveService
	mirror  *service.MirrorService
	logger  *slog.Logger
}

// NewArchiveHandler создаёт обработчик команд приёма.
func NewArchiveHandler(archive *service.ArchiveService, mirror *service.MirrorService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archive: archive,
		mirror:  mirror,
		logger:  logger.With(slog.String("component", "archive_handler")),
	}
}

// ingestedFileResponse — принятый файл в теле ответа.
type ingestedFileResponse struct {
	FileID        string    `json:"file_id"`
	FileVersion   int       `json:"file_version"`
	DiskID        string    `json:"disk_id"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	Checksum      string    `json:"checksum"`
	ChecksumAlgo  string    `json:"checksum_algorithm"`
	IngestionDate time.Time `json:"ingestion_date"`
}

// archiveResponse — тело успешного ответа команды приёма.
type archiveResponse struct {
	Status        string                 `json:"status"`
	Files         []ingestedFileResponse `json:"files"`
	ContainerID   string                 `json:"container_id,omitempty"`
	BytesReceived int64                  `json:"bytes_received,omitempty"`
}

func toFileResponses(records []*model.FileRecord) []ingestedFileResponse {
	out := make([]ingestedFileResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ingestedFileResponse{
			FileID:        r.FileID,
			FileVersion:   r.FileVersion,
			DiskID:        r.DiskID,
			FileName:      r.FileName,
			FileSize:      r.FileSize,
			Checksum:      r.Checksum,
			ChecksumAlgo:  r.ChecksumPlugin,
			IngestionDate: r.IngestionDate,
		})
	}
	return out
}

// Archive обрабатывает PUT /archive.
// Push-режим: тело запроса — данные, имя файла в query-параметре filename.
// Pull-режим: query-параметр uri — http(s)-адрес источника; file_id и
// file_version источника переносятся из query-части самого URI.
func (h *ArchiveHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if uri := r.URL.Query().Get("uri"); uri != "" {
		h.archivePull(w, r, uri)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		apierrors.ValidationError(w, "параметр filename либо uri обязателен")
		return
	}

	format := r.Header.Get("Content-Type")
	if format == "" {
		format = defaultFormat
	}

	res, err := h.archive.Archive(r.Context(), service.ArchiveRequest{
		Command:      "ARCHIVE",
		Body:         r.Body,
		FileURI:      filename,
		BaseName:     filepath.Base(filename),
		Format:       format,
		DeclaredSize: r.ContentLength,
	})
	if err != nil {
		apierrors.WriteArchiveError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, archiveResponse{
		Status:        "SUCCESS",
		Files:         toFileResponses(res.Records),
		BytesReceived: res.BytesRead,
	})
}

// archivePull принимает файл, скачивая его с удалённого источника.
func (h *ArchiveHandler) archivePull(w http.ResponseWriter, r *http.Request, uri string) {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		apierrors.ValidationError(w, "параметр uri должен быть http(s)-адресом")
		return
	}

	srcQuery := u.Query()
	fileID := srcQuery.Get("file_id")
	var version *int
	if s := srcQuery.Get("file_version"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			apierrors.ValidationError(w, "file_version в uri должен быть положительным целым")
			return
		}
		version = &v
	}

	baseName := path.Base(u.Path)
	if baseName == "/" || baseName == "." {
		baseName = path.Base(fileID)
	}
	if baseName == "/" || baseName == "." || baseName == "" {
		apierrors.ValidationError(w, "uri не содержит ни имени файла, ни file_id")
		return
	}

	format := r.URL.Query().Get("mime_type")
	if format == "" {
		format = defaultFormat
	}

	res, err := h.archive.Archive(r.Context(), service.ArchiveRequest{
		Command:     "ARCHIVE",
		FileURI:     uri,
		BaseName:    baseName,
		Format:      format,
		FileID:      fileID,
		FileVersion: version,
	})
	if err != nil {
		apierrors.WriteArchiveError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, archiveResponse{
		Status:        "SUCCESS",
		Files:         toFileResponses(res.Records),
		BytesReceived: res.BytesRead,
	})
}

// CArchive обрабатывает POST /carchive: приём контейнера.
// Multipart-тело разбирается как дерево контейнеров; имя корня берётся
// из query-параметра container_name либо из параметра name Content-Type.
// Не-multipart тело принимается как одиночный файл в контейнере: имя
// файла в query-параметре filename, container_name опционален — без
// него корень получает синтетическое имя.
func (h *ArchiveHandler) CArchive(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		h.carchiveSingleFile(w, r)
		return
	}
	boundary := params["boundary"]
	if boundary == "" {
		apierrors.ValidationError(w, "multipart Content-Type без boundary")
		return
	}

	rootName := r.URL.Query().Get("container_name")
	if rootName == "" {
		rootName = params["name"]
	}
	if rootName == "" {
		apierrors.ValidationError(w, "параметр container_name обязателен")
		return
	}

	res, err := h.archive.Archive(r.Context(), service.ArchiveRequest{
		Command:       "CARCHIVE",
		Body:          r.Body,
		FileURI:       rootName,
		Format:        mediaType,
		DeclaredSize:  r.ContentLength,
		Boundary:      boundary,
		RootName:      rootName,
		Containerized: true,
	})
	if err != nil {
		apierrors.WriteArchiveError(w, err)
		return
	}

	resp := archiveResponse{
		Status:        "SUCCESS",
		Files:         toFileResponses(res.Records),
		BytesReceived: res.BytesRead,
	}
	if res.Root != nil {
		resp.ContainerID = res.Root.ContainerID
	}
	h.writeSuccess(w, http.StatusCreated, resp)
}

// carchiveSingleFile принимает одиночный файл как контейнер из одного
// элемента. Корень без заявленного имени именуется по имени файла.
func (h *ArchiveHandler) carchiveSingleFile(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		apierrors.ValidationError(w, "для одиночного файла обязателен параметр filename")
		return
	}

	format := r.Header.Get("Content-Type")
	if format == "" {
		format = defaultFormat
	}

	res, err := h.archive.Archive(r.Context(), service.ArchiveRequest{
		Command:       "CARCHIVE",
		Body:          r.Body,
		FileURI:       filename,
		BaseName:      filepath.Base(filename),
		Format:        format,
		DeclaredSize:  r.ContentLength,
		RootName:      r.URL.Query().Get("container_name"),
		Containerized: true,
	})
	if err != nil {
		apierrors.WriteArchiveError(w, err)
		return
	}

	resp := archiveResponse{
		Status:        "SUCCESS",
		Files:         toFileResponses(res.Records),
		BytesReceived: res.BytesRead,
	}
	if res.Root != nil {
		resp.ContainerID = res.Root.ContainerID
	}
	h.writeSuccess(w, http.StatusCreated, resp)
}

// MirrArchive обрабатывает PUT /mirrarchive: возобновляемый зеркальный
// приём. Параметры: file_id, file_version, uri, start_byte (опционально,
// -1 или отсутствие — определить по staging-файлу).
func (h *ArchiveHandler) MirrArchive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fileID := q.Get("file_id")
	if fileID == "" {
		apierrors.ValidationError(w, "параметр file_id обязателен")
		return
	}

	version, err := strconv.Atoi(q.Get("file_version"))
	if err != nil || version <= 0 {
		apierrors.ValidationError(w, "параметр file_version должен быть положительным целым")
		return
	}

	uri := q.Get("uri")
	if uri == "" {
		apierrors.ValidationError(w, "параметр uri обязателен")
		return
	}

	startByte := int64(-1)
	if s := q.Get("start_byte"); s != "" {
		startByte, err = strconv.ParseInt(s, 10, 64)
		if err != nil || startByte < 0 {
			apierrors.ValidationError(w, "параметр start_byte должен быть неотрицательным целым")
			return
		}
	}

	format := q.Get("mime_type")
	if format == "" {
		format = defaultFormat
	}

	res, err := h.mirror.Mirror(r.Context(), service.MirrorRequest{
		FileID:      fileID,
		FileVersion: version,
		URI:         uri,
		Format:      format,
		StartByte:   startByte,
	})
	if err != nil {
		apierrors.WriteArchiveError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, archiveResponse{
		Status:        "SUCCESS",
		Files:         toFileResponses([]*model.FileRecord{res.Record}),
		BytesReceived: res.BytesReceived,
	})
}

func (h *ArchiveHandler) writeSuccess(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Ошибка записи ответа", slog.String("error", err.Error()))
	}
}
