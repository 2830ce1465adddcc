package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/metrics"
	"github.com/paiban/shiftplan/internal/middleware"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/stats"
	rules "github.com/paiban/shiftplan/pkg/validator"
)

// ConflictsResponse 员工冲突查询结果
type ConflictsResponse struct {
	WorkerID  uuid.UUID        `json:"worker_id"`
	StartDate string           `json:"start_date"`
	EndDate   string           `json:"end_date"`
	Count     int              `json:"count"`
	Conflicts []rules.Conflict `json:"conflicts"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.services.Health != nil {
		if err := h.services.Health(r.Context()); err != nil {
			logger.Warn().Err(err).Msg("健康检查失败")
			middleware.WriteJSON(w, http.StatusServiceUnavailable, middleware.Response{
				Success: false,
				Error:   apperrors.Wrap(err, apperrors.CodeInternal, "依赖不可用"),
			})
			return
		}
	}
	h.successResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetCoverage 覆盖率报告，format=text 返回文本格式
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	dr, err := h.dateRangeQuery(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	shiftIDs, err := uuidListQuery(r, "shift_ids")
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	tid := tenantID(r)
	report, err := h.services.Coverage.Analyze(r.Context(), tid, stats.CoverageRequest{DateRange: dr, ShiftIDs: shiftIDs})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	metrics.SetCoverageRate(tid.String(), report.Summary.OverallCoverage)

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(stats.GenerateCoverageReport(report)))
		return
	}
	h.successResponse(w, http.StatusOK, report)
}

func (h *Handler) GetWorkload(w http.ResponseWriter, r *http.Request) {
	dr, err := h.dateRangeQuery(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	tid := tenantID(r)
	result, err := h.services.Fairness.Analyze(r.Context(), tid, dr)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	metrics.SetFairnessGini(tid.String(), "hours", result.WorkloadGini)
	metrics.SetFairnessGini(tid.String(), "night", result.NightShiftGini)
	metrics.SetFairnessGini(tid.String(), "weekend", result.WeekendShiftGini)

	h.successResponse(w, http.StatusOK, result)
}

func (h *Handler) GetWorkerConflicts(w http.ResponseWriter, r *http.Request) {
	workerID, err := uuidParam(r, "workerID")
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	dr, err := h.dateRangeQuery(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	conflicts, err := h.services.Conflicts.Detect(r.Context(), tenantID(r), workerID, dr)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	for _, c := range conflicts {
		metrics.RecordConflict(string(c.Type))
	}
	if conflicts == nil {
		conflicts = []rules.Conflict{}
	}

	h.successResponse(w, http.StatusOK, ConflictsResponse{
		WorkerID:  workerID,
		StartDate: dr.StartDate,
		EndDate:   dr.EndDate,
		Count:     len(conflicts),
		Conflicts: conflicts,
	})
}
