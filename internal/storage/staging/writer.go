// Пакет staging — потоковая запись тела архивного запроса в staging-область.
//
// Тело запроса (одиночный файл или вложенный multipart-контейнер)
// пишется на диск блоками с подсчётом CRC32 на лету; параллельно
// строится дерево контейнеров в памяти. Фаза физической записи
// сериализуется per-slot блокировкой diskres.
package staging

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amanningeso/ngas/internal/domain/model"
	"github.com/amanningeso/ngas/internal/storage/checksum"
	"github.com/amanningeso/ngas/internal/storage/diskres"
)

// UnknownSizeSentinel — «неизвестный размер»: заведомо огромное значение,
// чтобы цикл чтения завершался только по концу потока, а не по
// преждевременному совпадению счётчика байтов.
const UnknownSizeSentinel = int64(1e11)

// Writer — потоковый писатель staging-области.
type Writer struct {
	blockSize int64
	locks     *diskres.Registry
}

// NewWriter создаёт писатель с заданным размером блока чтения/записи.
func NewWriter(blockSize int64, locks *diskres.Registry) *Writer {
	return &Writer{blockSize: blockSize, locks: locks}
}

// Params — параметры одного архивного запроса.
type Params struct {
	// Body — читаемый поток данных запроса
	Body io.Reader
	// FileURI — исходный URI (pull) либо имя файла (push)
	FileURI string
	// DeclaredSize — размер, заявленный вызывающим (push); 0 — не заявлен
	DeclaredSize int64
	// RemoteContentLength — Content-Length удалённого источника; -1 — нет
	RemoteContentLength int64
	// Boundary — multipart boundary; пусто — одиночный файл
	Boundary string
	// RootName — имя корневого контейнера
	RootName string
	// BaseName — имя файла для одиночного (не multipart) запроса
	BaseName string
	// StagingDir — целевой каталог staging-области
	StagingDir string
	// SlotID — слот тома для взаимного исключения; пусто — без блокировки
	SlotID string
}

// Result — результат фазы staging.
type Result struct {
	// Elapsed — полное время фазы
	Elapsed time.Duration
	// Root — корневой контейнер (синтетический для одиночного файла)
	Root *model.Container
	// Files — записанные staging-файлы в порядке появления в запросе
	Files []model.StagedFile
	// BytesRead — фактически прочитано байт
	BytesRead int64
	// IngestRate — скорость приёма, байт/с (0 при нулевом времени)
	IngestRate float64
}

// countingReader считает фактически прочитанные из источника байты.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// estimateSize определяет ожидаемый размер данных.
// Порядок: http(s)-pull — Content-Length источника либо неизвестно;
// прочие pull-схемы — неизвестно; push — размер, заявленный вызывающим.
func estimateSize(p Params) int64 {
	if isArchivePull(p.FileURI) {
		if strings.HasPrefix(p.FileURI, "http://") || strings.HasPrefix(p.FileURI, "https://") {
			if p.RemoteContentLength > 0 {
				return p.RemoteContentLength
			}
			return UnknownSizeSentinel
		}
		return UnknownSizeSentinel
	}
	if p.DeclaredSize > 0 {
		return p.DeclaredSize
	}
	return UnknownSizeSentinel
}

// isArchivePull — запрос тянет данные по URI, а не передаёт их телом.
func isArchivePull(uri string) bool {
	return strings.Contains(uri, "://")
}

// Write сохраняет тело запроса в staging-область.
//
// Multipart-тело разбирается как вложенная структура: части-файлы
// пишутся в уникально именованные staging-файлы, вложенные multipart-части
// открывают дочерние контейнеры. Любая ошибка ввода-вывода или разбора
// прерывает весь запрос: записанные staging-файлы удаляются, дерево
// контейнеров в каталог не попадает. Блокировка слота освобождается
// на любом пути выхода.
func (w *Writer) Write(ctx context.Context, p Params) (*Result, error) {
	if err := os.MkdirAll(p.StagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания staging-каталога %s: %w", p.StagingDir, err)
	}

	release := w.locks.Acquire(p.SlotID)
	defer release()

	start := time.Now()
	counting := &countingReader{r: p.Body}
	limited := io.LimitReader(counting, estimateSize(p))

	rootName := p.RootName
	if rootName == "" {
		rootName = p.BaseName
	}
	if rootName == "" {
		// Корень без имени получает синтетическое имя запроса
		rootName = uuid.New().String()
	}
	root := model.NewContainer(rootName, nil)

	var files []model.StagedFile
	var err error
	if p.Boundary != "" {
		err = w.parseContainer(ctx, multipart.NewReader(limited, p.Boundary), root, p.StagingDir, &files)
	} else {
		var sf model.StagedFile
		sf, err = w.writeFile(limited, p.BaseName, p.StagingDir)
		if err == nil {
			sf.Container = root
			files = append(files, sf)
		}
	}
	if err != nil {
		for _, sf := range files {
			_ = os.Remove(sf.StagingPath)
		}
		return nil, err
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(counting.n) / elapsed.Seconds()
	}

	return &Result{
		Elapsed:    elapsed,
		Root:       root,
		Files:      files,
		BytesRead:  counting.n,
		IngestRate: rate,
	}, nil
}

// parseContainer разбирает один уровень multipart-структуры.
// Вложенные multipart-части открывают дочерние контейнеры, остальные
// части пишутся как файлы во внутренний для них контейнер. Все файлы
// запроса попадают в один staging-каталог независимо от вложенности.
func (w *Writer) parseContainer(ctx context.Context, mr *multipart.Reader, parent *model.Container, stagingDir string, files *[]model.StagedFile) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ошибка разбора multipart: %w", err)
		}

		mediaType, mtParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(mediaType, "multipart/") {
			boundary := mtParams["boundary"]
			if boundary == "" {
				part.Close()
				return fmt.Errorf("вложенная multipart-часть без boundary")
			}
			child := model.NewContainer(partName(part), parent)
			if err := w.parseContainer(ctx, multipart.NewReader(part, boundary), child, stagingDir, files); err != nil {
				part.Close()
				return err
			}
			part.Close()
			continue
		}

		name := part.FileName()
		if name == "" {
			name = partName(part)
		}
		sf, err := w.writeFile(part, name, stagingDir)
		part.Close()
		if err != nil {
			return err
		}
		sf.Container = parent
		*files = append(*files, sf)
	}
}

// partName извлекает имя части: filename, затем form name.
func partName(part *multipart.Part) string {
	if name := part.FileName(); name != "" {
		return name
	}
	if name := part.FormName(); name != "" {
		return name
	}
	return "container"
}

// writeFile пишет поток в уникально именованный staging-файл,
// параллельно доворачивая CRC32. Формат имени: {uuid}___{baseName}.
func (w *Writer) writeFile(r io.Reader, baseName, stagingDir string) (model.StagedFile, error) {
	path := filepath.Join(stagingDir, uuid.New().String()+"___"+filepath.Base(baseName))

	f, err := os.Create(path)
	if err != nil {
		return model.StagedFile{}, fmt.Errorf("ошибка создания staging-файла: %w", err)
	}

	acc := checksum.New()
	size, err := io.CopyBuffer(io.MultiWriter(f, acc), r, make([]byte, w.blockSize))
	if err != nil {
		f.Close()
		os.Remove(path)
		return model.StagedFile{}, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return model.StagedFile{}, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return model.StagedFile{}, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return model.StagedFile{
		StagingPath: path,
		Checksum:    acc.Value(),
		Size:        size,
	}, nil
}
