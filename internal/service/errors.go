// Пакет service — бизнес-логика ядра приёма: выбор тома, оркестрация
// staged- и зеркального приёма, коммит метаданных, уведомления.
package service

import (
	"errors"
	"fmt"
)

// Kind — класс исхода архивного запроса. Каждая ветвь таксономии
// обрабатывается вызывающим явно, catch-all не предусмотрен.
type Kind string

const (
	// KindConfigurationRejected — приём отключён либо сервер не в
	// состоянии ONLINE. Сообщается до перемещения байтов.
	KindConfigurationRejected Kind = "CONFIGURATION_REJECTED"
	// KindNoVolumeAvailable — нет доступного тома. Сообщается до
	// перемещения байтов.
	KindNoVolumeAvailable Kind = "NO_VOLUME_AVAILABLE"
	// KindIOFailure — ошибка записи/загрузки, не связанная с местом.
	// При нуле переданных байт окончательна для попытки.
	KindIOFailure Kind = "IO_FAILURE"
	// KindDiskExhausted — место на диске исчерпано; окончательно для
	// текущего тома, повтор на нём бессмыслен.
	KindDiskExhausted Kind = "DISK_EXHAUSTED"
	// KindResumable — частичная передача; staging-файл сохранён как
	// точка возобновления, попытку следует повторить позже.
	KindResumable Kind = "RESUMABLE"
	// KindCatalogFailure — сбой персистенции после того, как байты уже
	// надёжно размещены: полезная нагрузка на месте, метаданных нет.
	KindCatalogFailure Kind = "CATALOG_FAILURE"
)

// ArchiveError — тегированная ошибка архивного запроса.
type ArchiveError struct {
	Kind Kind
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// failure создаёт ArchiveError указанного класса.
func failure(kind Kind, err error) *ArchiveError {
	return &ArchiveError{Kind: kind, Err: err}
}

// KindOf возвращает класс ошибки или пустую строку, если ошибка
// не является ArchiveError.
func KindOf(err error) Kind {
	var ae *ArchiveError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
