package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/utils"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// PricingHandler обработчик запросов ценообразования
type PricingHandler struct {
	pricingService services.PricingServiceInterface
	storage        postgres.PricingStoragePort
	logger         interfaces.LoggerPort
}

// NewPricingHandler создает новый обработчик ценообразования
func NewPricingHandler(pricingService services.PricingServiceInterface, storage postgres.PricingStoragePort, logger interfaces.LoggerPort) *PricingHandler {
	return &PricingHandler{
		pricingService: pricingService,
		storage:        storage,
		logger:         logger,
	}
}

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// decodeRunRequest читает и проверяет тело запроса прогона
func (h *PricingHandler) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*models.RunRequest, bool) {
	var request models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "Некорректное тело запроса",
		})
		return nil, false
	}

	if request.Actor == "" {
		if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
			request.Actor = claims.UserID
		}
	}

	return &request, true
}

// RunPricing обрабатывает запрос на синхронный прогон ценообразования
func (h *PricingHandler) RunPricing(w http.ResponseWriter, r *http.Request) {
	request, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	result, err := h.pricingService.ExecuteRun(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrEmptyRunRequest):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{
				Error:   "bad_request",
				Code:    http.StatusBadRequest,
				Message: "Запрос не содержит позиций или аккаунтов",
			})
		case errors.Is(err, utils.ErrRunInProgress):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, errorResponse{
				Error:   "conflict",
				Code:    http.StatusConflict,
				Message: "Прогон уже выполняется",
			})
		case errors.Is(err, utils.ErrAccountNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Аккаунты не найдены",
			})
		default:
			h.logger.ErrorWithContext(r.Context(), "Ошибка выполнения прогона",
				interfaces.LogField{Key: "error", Value: err.Error()})
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{
				Error:   "internal_error",
				Code:    http.StatusInternalServerError,
				Message: "Ошибка выполнения прогона",
			})
		}
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    result,
	})
}

// EnqueueRun обрабатывает запрос на асинхронный прогон ценообразования
func (h *PricingHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	request, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	runID, err := h.pricingService.EnqueueRun(r.Context(), request)
	if err != nil {
		if errors.Is(err, utils.ErrEmptyRunRequest) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{
				Error:   "bad_request",
				Code:    http.StatusBadRequest,
				Message: "Запрос не содержит позиций или аккаунтов",
			})
			return
		}

		h.logger.ErrorWithContext(r.Context(), "Ошибка постановки прогона в очередь",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка постановки прогона в очередь",
		})
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response{
		Success: true,
		Data:    map[string]string{"run_id": runID},
	})
}

// ListAccounts обрабатывает запрос на получение списка аккаунтов
func (h *PricingHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.storage.ListAccounts(r.Context())
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения списка аккаунтов",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения списка аккаунтов",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    accounts,
	})
}

// ListAuditRecords обрабатывает запрос на получение записей аудита аккаунта
func (h *PricingHandler) ListAuditRecords(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{
			Error:   "bad_request",
			Code:    http.StatusBadRequest,
			Message: "ID аккаунта не указан",
		})
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 50
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	records, err := h.storage.ListAuditRecords(r.Context(), accountID, limit, offset)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения записей аудита",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения записей аудита",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    records,
		Meta:    map[string]int{"limit": limit, "offset": offset},
	})
}
