package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/protocol"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/service"
	"whiteboard-sync/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// BoardHandler is the local control API: board management and drawing on
// the selected board.
type BoardHandler struct {
	service  *service.BoardService
	validate *validator.Validate
}

func NewBoardHandler(service *service.BoardService) *BoardHandler {
	return &BoardHandler{
		service:  service,
		validate: validator.New(),
	}
}

// Register mounts the control API under r.
func (h *BoardHandler) Register(r *mux.Router) {
	r.HandleFunc("/boards", h.List).Methods("GET", "OPTIONS")
	r.HandleFunc("/boards", h.Create).Methods("POST", "OPTIONS")
	r.HandleFunc("/boards/{id}", h.Delete).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/boards/{id}/select", h.Select).Methods("POST", "OPTIONS")
	r.HandleFunc("/selected", h.Selected).Methods("GET", "OPTIONS")
	r.HandleFunc("/selected/paths", h.DrawPath).Methods("POST", "OPTIONS")
	r.HandleFunc("/selected/undo", h.Undo).Methods("POST", "OPTIONS")
	r.HandleFunc("/selected/clear", h.Clear).Methods("POST", "OPTIONS")
	r.HandleFunc("/selected/shared", h.SetShared).Methods("PUT", "OPTIONS")
}

func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.service.List())
}

func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.CreateBoard()
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, board.Summary())
}

func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.ParseID(mux.Vars(r)["id"])
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if err := h.service.DeleteBoard(id); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]string{"deleted": id.String()})
}

func (h *BoardHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.ParseID(mux.Vars(r)["id"])
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if err := h.service.SelectBoard(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.Selected(w, r)
}

func (h *BoardHandler) Selected(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Selected()
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, snap)
}

func (h *BoardHandler) DrawPath(w http.ResponseWriter, r *http.Request) {
	var req domain.DrawPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	accepted, err := h.service.DrawPath(req.Path())
	h.writeMutation(w, accepted, err)
}

func (h *BoardHandler) Undo(w http.ResponseWriter, r *http.Request) {
	accepted, err := h.service.Undo()
	h.writeMutation(w, accepted, err)
}

func (h *BoardHandler) Clear(w http.ResponseWriter, r *http.Request) {
	accepted, err := h.service.Clear()
	h.writeMutation(w, accepted, err)
}

func (h *BoardHandler) SetShared(w http.ResponseWriter, r *http.Request) {
	var req domain.SetSharedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.service.SetShared(*req.Shared); err != nil {
		writeError(w, err)
		return
	}
	h.Selected(w, r)
}

// writeMutation reports a local mutation. A rejected mutation is a conflict
// carrying the board as it now stands. A mutation that was applied but could
// not be forwarded is still reported as a failure.
func (h *BoardHandler) writeMutation(w http.ResponseWriter, accepted bool, err error) {
	if err != nil && !accepted {
		writeError(w, err)
		return
	}

	snap, selErr := h.service.Selected()
	if selErr != nil {
		writeError(w, selErr)
		return
	}
	body := domain.MutationResponse{Accepted: accepted, Board: snap}

	switch {
	case err != nil:
		response.Failure(w, statusFor(err), err.Error(), body)
	case !accepted:
		response.Conflict(w, "board changed concurrently", body)
	default:
		response.Success(w, body)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedIdentity),
		errors.Is(err, domain.ErrMalformedPath),
		errors.Is(err, protocol.ErrMalformedMessage):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrBoardNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrBoardExists), errors.Is(err, service.ErrNotOwner):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoBoardSelected):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrBoardUnreachable), errors.Is(err, service.ErrDirectoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	response.Error(w, statusFor(err), err.Error())
}
