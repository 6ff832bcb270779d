// state.go — обработчики рабочего состояния сервера:
// просмотр текущего состояния и перевод ONLINE/OFFLINE.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/amanningeso/ngas/internal/api/errors"
	"github.com/amanningeso/ngas/internal/config"
	"github.com/amanningeso/ngas/internal/domain/state"
)

// StateHandler реализует endpoints управления состоянием сервера.
type StateHandler struct {
	machine *state.Machine
	logger  *slog.Logger
}

// NewStateHandler создаёт обработчик состояния сервера.
func NewStateHandler(machine *state.Machine, logger *slog.Logger) *StateHandler {
	return &StateHandler{
		machine: machine,
		logger:  logger.With(slog.String("component", "state_handler")),
	}
}

// statusResponse — тело ответа GET /status.
type statusResponse struct {
	State     state.ServerState        `json:"state"`
	SubState  state.SubState           `json:"sub_state"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	History   []state.TransitionRecord `json:"history"`
}

// Status обрабатывает GET /status: текущее состояние, подсостояние
// и журнал переходов.
func (h *StateHandler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		State:     h.machine.Current(),
		SubState:  h.machine.Sub(),
		Version:   config.Version,
		Timestamp: time.Now().UTC(),
		History:   h.machine.History(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// transitionRequest — тело запроса PUT /state.
type transitionRequest struct {
	Target state.ServerState `json:"target"`
}

// Transition обрабатывает PUT /state: перевод сервера в ONLINE или
// OFFLINE. Запросы в полёте при переходе в OFFLINE не прерываются.
func (h *StateHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	if err := h.machine.Transition(req.Target); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	h.logger.Info("Состояние сервера изменено", slog.String("state", string(req.Target)))
	h.Status(w, r)
}
