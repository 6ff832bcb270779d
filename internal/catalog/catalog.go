// Пакет catalog — слой доступа к каталогу метаданных PostgreSQL.
// Все запросы — чистый параметризованный SQL через pgx, без ORM.
//
// Последовательности из нескольких операторов (коммит партии файлов,
// персистенция дерева контейнеров) сознательно НЕ оборачиваются в одну
// транзакцию: атомарен каждый отдельный оператор, частичное выполнение
// партии — допустимый, сигнализируемый исход.
package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя каталога.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующаяся запись).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — интерфейс выполнения SQL-запросов.
// Реализуется *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
