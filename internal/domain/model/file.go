package model

import "time"

// Статусы файла в каталоге. Единственное терминальное состояние успеха — OK.
const (
	FileStatusOK = "OK"
)

// CompressionNone — полезная нагрузка хранится как есть; сжатие
// фиксируется только как метаданные.
const CompressionNone = "NONE"

// FileRecord — авторитетная запись каталога об одной версии файла
// (строка таблицы ngas_files). Пара (FileID, FileVersion) уникальна;
// запись создаётся один раз и не мутируется.
type FileRecord struct {
	// DiskID — том, на котором размещён файл
	DiskID string
	// FileName — путь файла относительно точки монтирования тома
	FileName string
	// FileID — логический идентификатор файла
	FileID string
	// FileVersion — версия, монотонная в рамках FileID
	FileVersion int
	// Format — MIME-тип содержимого
	Format string
	// FileSize — размер файла на диске в байтах
	FileSize int64
	// UncompressedFileSize — размер несжатых данных в байтах
	UncompressedFileSize int64
	// Compression — метка сжатия (NONE — хранение как есть)
	Compression string
	// IngestionDate — момент приёма
	IngestionDate time.Time
	// Checksum — контрольная сумма полного содержимого
	Checksum string
	// ChecksumPlugin — метка алгоритма контрольной суммы
	ChecksumPlugin string
	// FileStatus — статус жизненного цикла
	FileStatus string
	// CreationDate — время создания файла на диске
	CreationDate time.Time
	// IoTime — накопленное время дискового ввода-вывода запроса
	IoTime time.Duration
}

// StagedFile — транзиентная сущность: файл в staging-области между
// завершением записи и переносом в конечное расположение.
type StagedFile struct {
	// StagingPath — абсолютный путь в staging-области
	StagingPath string
	// Container — контейнер, которому принадлежит файл (nil вне контейнера)
	Container *Container
	// Checksum — накопленная контрольная сумма содержимого
	Checksum string
	// Size — количество записанных байт
	Size int64
}
