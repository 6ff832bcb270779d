// Пакет diskres — взаимное исключение записи на физический слот тома.
//
// Несколько одновременных запросов, пишущих на один слот, сериализуются,
// чтобы не перемешивать дисковый ввод-вывод. Блокировка охватывает только
// фазу физической записи; контрольные суммы и персистенция метаданных
// разных запросов идут параллельно. Корректность данных от блокировки
// не зависит.
package diskres

import "sync"

// Registry — реестр блокировок по идентификатору слота.
// Потокобезопасен.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*sync.Mutex
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*sync.Mutex)}
}

// Acquire блокирует слот и возвращает функцию освобождения.
// Вызов блокируется, пока слот занят другим запросом. Освобождение
// обязано выполняться на каждом пути выхода (defer release()).
// Пустой slotID означает, что взаимное исключение не запрошено:
// возвращается no-op, поведение записи не меняется.
func (r *Registry) Acquire(slotID string) (release func()) {
	if slotID == "" {
		return func() {}
	}

	r.mu.Lock()
	m, ok := r.slots[slotID]
	if !ok {
		m = &sync.Mutex{}
		r.slots[slotID] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}
