package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/metrics"
	"github.com/paiban/shiftplan/internal/tenant"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/scheduler"
	"github.com/paiban/shiftplan/pkg/swap"
)

// GenerateScheduleRequest 排班生成请求体，未给出的分配选项取配置默认值
type GenerateScheduleRequest struct {
	model.DateRange
	ShiftIDs                 []uuid.UUID `json:"shift_ids,omitempty"`
	DepartmentID             *uuid.UUID  `json:"department_id,omitempty"`
	WorkCenterID             *uuid.UUID  `json:"work_center_id,omitempty"`
	AutoAssign               bool        `json:"auto_assign"`
	RespectSkillRequirements *bool       `json:"respect_skill_requirements,omitempty"`
	BalanceWorkload          *bool       `json:"balance_workload,omitempty"`
}

// ApplyPatternRequest 轮班模式应用请求体
type ApplyPatternRequest struct {
	model.DateRange
	Pattern   model.ShiftPattern `json:"pattern"`
	WorkerIDs []uuid.UUID        `json:"worker_ids" validate:"required,min=1"`
}

// UpdateStatusRequest 分配状态变更请求体
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

func tenantID(r *http.Request) uuid.UUID {
	id, _ := tenant.FromContext(r.Context())
	return id
}

func (h *Handler) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	var body GenerateScheduleRequest
	if err := h.decodeAndValidate(w, r, &body); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	opts := scheduler.AssignOptions{
		RespectSkillRequirements: h.config.Scheduler.RespectSkillRequirements,
		BalanceWorkload:          h.config.Scheduler.BalanceWorkload,
	}
	if body.RespectSkillRequirements != nil {
		opts.RespectSkillRequirements = *body.RespectSkillRequirements
	}
	if body.BalanceWorkload != nil {
		opts.BalanceWorkload = *body.BalanceWorkload
	}

	start := time.Now()
	result, err := h.services.Generator.Generate(r.Context(), tenantID(r), scheduler.GenerateRequest{
		DateRange:     body.DateRange,
		ShiftIDs:      body.ShiftIDs,
		DepartmentID:  body.DepartmentID,
		WorkCenterID:  body.WorkCenterID,
		AutoAssign:    body.AutoAssign,
		AssignOptions: opts,
	})
	if result != nil {
		metrics.RecordScheduleGeneration(err == nil, result.Duration, result.Count(), result.Understaffed)
	} else {
		metrics.RecordScheduleGeneration(false, time.Since(start), 0, 0)
	}
	if err != nil {
		// 取消或超时时已提交的部分一并返回
		h.partialResponse(w, r, err, result)
		return
	}

	h.successResponse(w, http.StatusCreated, result)
}

func (h *Handler) ApplyPattern(w http.ResponseWriter, r *http.Request) {
	var body ApplyPatternRequest
	if err := h.decodeAndValidate(w, r, &body); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	result, err := h.services.Patterns.Apply(r.Context(), tenantID(r), scheduler.PatternRequest{
		DateRange: body.DateRange,
		Pattern:   body.Pattern,
		WorkerIDs: body.WorkerIDs,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	metrics.RecordPatternApplied(len(result.Assignments))

	h.successResponse(w, http.StatusCreated, result)
}

func (h *Handler) UpdateAssignmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var body UpdateStatusRequest
	if err := h.decodeAndValidate(w, r, &body); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	updated, err := h.services.Status.UpdateStatus(r.Context(), tenantID(r), id,
		model.AssignmentStatus(body.Status), body.Note)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, http.StatusOK, updated)
}

func (h *Handler) SwapShift(w http.ResponseWriter, r *http.Request) {
	var body swap.Request
	if err := h.decodeAndValidate(w, r, &body); err != nil {
		h.errorResponse(w, r, err)
		return
	}

	result, err := h.services.Swaps.Swap(r.Context(), tenantID(r), body)
	metrics.RecordSwap(err == nil)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, http.StatusOK, result)
}
