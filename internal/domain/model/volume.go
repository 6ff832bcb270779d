// Пакет model — доменные модели ядра приёма NGAS:
// тома хранения, контейнеры, записи файлов.
package model

import "time"

// Volume — управляемый том хранения (точка монтирования).
// Строка таблицы ngas_disks. Счётчики мутируются только слоем коммита
// метаданных после успешной записи файла; флаг completed выставляет
// оркестратор, когда свободное место падает ниже порога.
type Volume struct {
	// DiskID — уникальный идентификатор тома
	DiskID string
	// HostID — хост, на котором смонтирован том
	HostID string
	// SlotID — идентификатор физического слота (ключ взаимного исключения записи)
	SlotID string
	// MountPoint — абсолютный путь точки монтирования
	MountPoint string
	// AvailableMB — доступное место в мегабайтах
	AvailableMB int64
	// BytesStored — суммарный объём сохранённых байт
	BytesStored int64
	// NumberOfFiles — количество файлов на томе
	NumberOfFiles int64
	// Completed — том заполнен, новые файлы не принимаются
	Completed bool
	// CompletionDate — момент выставления флага completed
	CompletionDate *time.Time
}

// StagingDir возвращает каталог staging-области тома.
func (v *Volume) StagingDir() string {
	return v.MountPoint + "/staging"
}
