package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/middleware"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
)

const maxBodyBytes = 1 << 20

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidInput("body", err.Error())
	}
	return nil
}

// decodeAndValidate 解析请求体并校验
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) error {
	if err := h.readJSON(w, r, v); err != nil {
		return err
	}
	return h.validateStruct(v)
}

// validateStruct 校验失败时返回带中文提示的 VALIDATION_FAILED
func (h *Handler) validateStruct(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.InvalidInput("body", err.Error())
	}
	ve := &apperrors.ValidationErrors{}
	for _, fe := range validationErrors {
		ve.Add(fe.Field(), fe.Translate(h.translator))
	}
	appErr := ve.ToAppError()
	appErr.Message = validationErrors[0].Translate(h.translator)
	return appErr
}

func (h *Handler) successResponse(w http.ResponseWriter, status int, data any) {
	middleware.WriteJSON(w, status, middleware.Response{Success: true, Data: data})
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.partialResponse(w, r, err, nil)
}

// partialResponse 返回错误，同时带上已完成的部分结果
func (h *Handler) partialResponse(w http.ResponseWriter, r *http.Request, err error, data any) {
	appErr := middleware.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("服务器内部错误")
	}
	middleware.WriteError(w, appErr, data)
}

// uuidParam 解析路由中的 UUID 参数
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.InvalidInput(name, raw)
	}
	return id, nil
}

// dateRangeQuery 读取 start_date / end_date 查询参数
func (h *Handler) dateRangeQuery(r *http.Request) (model.DateRange, error) {
	q := r.URL.Query()
	dr := model.DateRange{StartDate: q.Get("start_date"), EndDate: q.Get("end_date")}
	if err := h.validateStruct(dr); err != nil {
		return dr, err
	}
	return dr, nil
}

// uuidListQuery 解析逗号分隔的 UUID 列表
func uuidListQuery(r *http.Request, name string) ([]uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, apperrors.InvalidInput(name, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
