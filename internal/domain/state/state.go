// Пакет state — конечный автомат рабочего состояния сервера приёма.
//
// Состояния: ONLINE (запросы принимаются) и OFFLINE. Подсостояние
// IDLE/BUSY выводится из числа активных запросов. Переход в OFFLINE
// не прерывает запросы в полёте: отклоняются только новые запросы
// на этапе выбора тома.
//
// Потокобезопасен через sync.RWMutex.
package state

import (
	"fmt"
	"sync"
	"time"
)

// ServerState — рабочее состояние сервера.
type ServerState string

const (
	// StateOnline — сервер принимает архивные запросы
	StateOnline ServerState = "ONLINE"
	// StateOffline — новые запросы отклоняются
	StateOffline ServerState = "OFFLINE"
)

// SubState — подсостояние сервера.
type SubState string

const (
	// SubStateIdle — активных запросов нет
	SubStateIdle SubState = "IDLE"
	// SubStateBusy — есть запросы в полёте
	SubStateBusy SubState = "BUSY"
)

// TransitionRecord — запись о смене состояния.
type TransitionRecord struct {
	From      ServerState `json:"from"`
	To        ServerState `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
}

// Machine — конечный автомат состояния сервера.
type Machine struct {
	mu      sync.RWMutex
	current ServerState
	active  int
	history []TransitionRecord
}

// NewMachine создаёт автомат с начальным состоянием.
func NewMachine(initial ServerState) (*Machine, error) {
	if initial != StateOnline && initial != StateOffline {
		return nil, fmt.Errorf("недопустимое начальное состояние: %q", initial)
	}
	return &Machine{current: initial}, nil
}

// Current возвращает текущее состояние.
func (m *Machine) Current() ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Sub возвращает текущее подсостояние.
func (m *Machine) Sub() SubState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active > 0 {
		return SubStateBusy
	}
	return SubStateIdle
}

// Transition переводит сервер в новое состояние.
func (m *Machine) Transition(target ServerState) error {
	if target != StateOnline && target != StateOffline {
		return fmt.Errorf("недопустимое состояние: %q", target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == target {
		return nil
	}
	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	m.current = target
	return nil
}

// BeginRequest регистрирует новый архивный запрос. Возвращает ошибку,
// если сервер не в состоянии ONLINE; запросы в полёте при этом
// не затрагиваются.
func (m *Machine) BeginRequest() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != StateOnline {
		return nil, fmt.Errorf("сервер в состоянии %s, архивные запросы не принимаются", m.current)
	}

	m.active++
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.active--
		})
	}, nil
}

// History возвращает копию журнала переходов.
func (m *Machine) History() []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}
