package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hydrograph-lab/timegrid/internal/aggregate"
	"github.com/hydrograph-lab/timegrid/internal/config"
	"github.com/hydrograph-lab/timegrid/internal/flags"
	"github.com/hydrograph-lab/timegrid/internal/infill"
	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/storage/postgres"
	"github.com/hydrograph-lab/timegrid/internal/timecheck"
)

// ResultStore persists aggregation results. Optional; a nil store disables
// persistence and the result endpoints.
type ResultStore interface {
	Save(ctx context.Context, seriesID uuid.UUID, res *aggregate.Result) error
	QueryRange(ctx context.Context, seriesID uuid.UUID, column, periodSpec, reducer string, start, end time.Time) ([]postgres.StoredWindow, error)
	DeleteSeries(ctx context.Context, seriesID uuid.UUID) (int64, error)
}

// Handler serves the series validation and aggregation endpoints.
type Handler struct {
	cfg   *config.Config
	store ResultStore
	flags *flags.Manager
}

// NewHandler creates a new series API handler. The flag manager is optional;
// without one infill requests cannot ask for flag masks.
func NewHandler(cfg *config.Config, store ResultStore, flagManager *flags.Manager) *Handler {
	return &Handler{cfg: cfg, store: store, flags: flagManager}
}

// Register mounts the handler's routes on a router group.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/series/validate", h.HandleValidate)
	v1.POST("/series/aggregate", h.HandleAggregate)
	v1.POST("/series/infill", h.HandleInfill)
	v1.GET("/results/:series_id", h.HandleQueryResults)
	v1.DELETE("/results/:series_id", h.HandleDeleteResults)
}

// buildValidator merges a request's contract with the configured defaults.
func (h *Handler) buildValidator(spec ContractSpec) (*timecheck.Validator, error) {
	defaults := h.cfg.Series
	pick := func(v, fallback string) string {
		if v != "" {
			return v
		}
		return fallback
	}

	resolution, err := period.Parse(pick(spec.Resolution, defaults.Resolution))
	if err != nil {
		return nil, err
	}
	anchor, err := timecheck.ParseAnchor(pick(spec.Anchor, defaults.Anchor))
	if err != nil {
		return nil, err
	}
	dup, err := timecheck.ParseDuplicatePolicy(pick(spec.OnDuplicate, defaults.OnDuplicate))
	if err != nil {
		return nil, err
	}
	opts := []timecheck.Option{
		timecheck.WithAnchor(anchor),
		timecheck.WithDuplicatePolicy(dup),
		timecheck.WithMisalignedPolicy(timecheck.MisalignedPolicy(pick(spec.OnMisaligned, defaults.OnMisaligned))),
	}
	if p := pick(spec.Periodicity, defaults.Periodicity); p != "" {
		periodicity, err := period.Parse(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, timecheck.WithPeriodicity(periodicity))
	}
	return timecheck.NewValidator(resolution, opts...)
}

// HandleValidate handles POST /v1/series/validate.
func (h *Handler) HandleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Message: err.Error()})
		return
	}

	s, err := req.Series.ToSeries()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series", Message: err.Error()})
		return
	}
	validator, err := h.buildValidator(req.Contract)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_contract", Message: err.Error()})
		return
	}

	res, err := validator.Normalize(s)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: violationKind(err), Message: err.Error()})
		return
	}

	payload, err := FromSeries(res.Series)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ValidateResponse{
		Report: ReportPayload{
			Rows:            res.Series.Len(),
			ResolutionOK:    res.Resolution.OK(),
			PeriodicityOK:   res.Periodicity.OK(),
			DuplicateGroups: len(res.Duplicates.Groups),
			RemovedRows:     res.Removed.Times,
		},
		Series: payload,
	})
}

// HandleAggregate handles POST /v1/series/aggregate.
func (h *Handler) HandleAggregate(c *gin.Context) {
	var req AggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Message: err.Error()})
		return
	}

	s, err := req.Series.ToSeries()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series", Message: err.Error()})
		return
	}
	validator, err := h.buildValidator(req.Contract)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_contract", Message: err.Error()})
		return
	}

	outputPeriod, err := period.Parse(req.Period)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_period", Message: err.Error()})
		return
	}
	reducer, err := aggregate.New(aggregate.Spec{
		Name:       req.Reducer.Name,
		Percentile: req.Reducer.Percentile,
		Threshold:  req.Reducer.Threshold,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_reducer", Message: err.Error()})
		return
	}
	opts, err := h.buildOptions(req, validator)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_options", Message: err.Error()})
		return
	}

	var seriesID uuid.UUID
	persist := req.SeriesID != "" && h.store != nil
	if persist {
		seriesID, err = uuid.Parse(req.SeriesID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series_id", Message: err.Error()})
			return
		}
	}

	normalized, err := validator.Normalize(s)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: violationKind(err), Message: err.Error()})
		return
	}
	s = normalized.Series

	columns := req.Columns
	if len(columns) == 0 {
		columns = s.Columns()
	}
	if len(columns) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series", Message: "no value columns to aggregate"})
		return
	}

	results, err := aggregate.AggregateMany(c.Request.Context(), s, columns, outputPeriod, reducer, opts)
	if err != nil {
		var incomplete *aggregate.IncompleteWindowError
		if errors.As(err, &incomplete) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "incomplete_window", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "aggregation_failed", Message: err.Error()})
		return
	}

	resp := AggregateResponse{Period: outputPeriod.String()}
	for _, column := range columns {
		res := results[column]
		if persist {
			if err := h.store.Save(c.Request.Context(), seriesID, res); err != nil {
				slog.Error("Failed to persist aggregation result", "series_id", seriesID.String(), "column", column, "error", err)
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "persist_failed", Message: err.Error()})
				return
			}
		}
		cr := ColumnResult{Column: res.Column, Reducer: res.Reducer}
		for _, w := range res.Windows {
			wp := WindowPayload{
				Start:         w.Start,
				End:           w.End,
				Anchor:        w.Anchor,
				MemberCount:   w.MemberCount,
				ExpectedCount: w.ExpectedCount,
				OccurredAt:    w.At,
				Valid:         w.Valid,
			}
			if !w.Value.Null {
				f := w.Value.Float
				wp.Value = &f
			}
			cr.Windows = append(cr.Windows, wp)
		}
		resp.Results = append(resp.Results, cr)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleQueryResults handles GET /v1/results/:series_id.
func (h *Handler) HandleQueryResults(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "store_disabled", Message: "result store is not configured"})
		return
	}
	seriesID, err := uuid.Parse(c.Param("series_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series_id", Message: err.Error()})
		return
	}
	var q ResultQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_query", Message: err.Error()})
		return
	}

	windows, err := h.store.QueryRange(c.Request.Context(), seriesID, q.Column, q.Period, q.Reducer, q.From, q.To)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "query_failed", Message: err.Error()})
		return
	}

	resp := ResultsResponse{SeriesID: seriesID.String(), Column: q.Column, Period: q.Period, Reducer: q.Reducer}
	for _, w := range windows {
		wp := WindowPayload{
			Start:         w.Start,
			End:           w.End,
			Anchor:        w.Anchor,
			MemberCount:   w.MemberCount,
			ExpectedCount: w.ExpectedCount,
			OccurredAt:    w.OccurredAt,
			Valid:         w.Valid,
		}
		if w.Value != nil {
			f, _ := w.Value.Float64()
			wp.Value = &f
		}
		resp.Windows = append(resp.Windows, wp)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeleteResults handles DELETE /v1/results/:series_id.
func (h *Handler) HandleDeleteResults(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "store_disabled", Message: "result store is not configured"})
		return
	}
	seriesID, err := uuid.Parse(c.Param("series_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series_id", Message: err.Error()})
		return
	}
	deleted, err := h.store.DeleteSeries(c.Request.Context(), seriesID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "delete_failed", Message: err.Error()})
		return
	}
	slog.Info("Deleted stored aggregation results", "series_id", seriesID.String(), "windows", deleted)
	c.JSON(http.StatusOK, DeleteResultsResponse{SeriesID: seriesID.String(), Deleted: deleted})
}

// HandleInfill handles POST /v1/series/infill.
func (h *Handler) HandleInfill(c *gin.Context) {
	var req InfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Message: err.Error()})
		return
	}

	s, err := req.Series.ToSeries()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series", Message: err.Error()})
		return
	}
	validator, err := h.buildValidator(req.Contract)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_contract", Message: err.Error()})
		return
	}
	method, err := infill.ByName(req.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_method", Message: err.Error()})
		return
	}

	normalized, err := validator.Normalize(s)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: violationKind(err), Message: err.Error()})
		return
	}
	s = normalized.Series

	columns := req.Columns
	if len(columns) == 0 {
		columns = s.Columns()
	}
	if len(columns) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_series", Message: "no value columns to infill"})
		return
	}

	var system *flags.Registry
	flagName := req.Flag
	if req.FlagSystem != "" {
		if h.flags == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "flags_unavailable", Message: "no flag systems are configured"})
			return
		}
		system, err = h.flags.System(req.FlagSystem)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_flag_system", Message: err.Error()})
			return
		}
		if flagName == "" {
			flagName = "infilled"
		}
	}

	opts := infill.Options{MaxGapSize: req.MaxGapSize}
	if req.From != nil || req.To != nil {
		opts.Interval = &infill.Interval{Start: req.From, End: req.To}
	}
	resp := InfillResponse{}
	for _, column := range columns {
		res, err := infill.Apply(s, column, validator.Resolution(), method, opts)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "infill_failed", Message: err.Error()})
			return
		}
		s = res.Series
		resp.Padded += res.Padded
		ci := ColumnInfill{Column: column, Filled: len(res.Filled)}
		if system != nil {
			col := flags.Column{Name: column, Base: column, System: system}
			masks, err := infill.MarkInfilled(col, make([]flags.Mask, s.Len()), flagName, res.Filled)
			if err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_flag", Message: err.Error()})
				return
			}
			ci.Flags = make([]uint64, len(masks))
			for i, m := range masks {
				ci.Flags[i] = uint64(m)
			}
		}
		resp.Columns = append(resp.Columns, ci)
	}

	payload, err := FromSeries(s)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: err.Error()})
		return
	}
	resp.Series = payload
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) buildOptions(req AggregateRequest, validator *timecheck.Validator) (aggregate.Options, error) {
	defaults := h.cfg.Aggregation
	anchorSpec := req.Anchor
	if anchorSpec == "" {
		anchorSpec = defaults.Anchor
	}
	// With no explicit override the output inherits the input series' anchor.
	anchor := validator.Anchor()
	var err error
	if anchorSpec != "" {
		anchor, err = timecheck.ParseAnchor(anchorSpec)
		if err != nil {
			return aggregate.Options{}, err
		}
	}

	criteria := aggregate.MissingCriteria{}
	if req.Criteria != nil {
		criteria, err = aggregate.ParseCriteria(req.Criteria.Policy, req.Criteria.Threshold)
	} else if defaults.Criteria != "" {
		criteria, err = aggregate.ParseCriteria(defaults.Criteria, defaults.CriteriaThreshold)
	}
	if err != nil {
		return aggregate.Options{}, err
	}

	return aggregate.Options{
		Resolution: validator.Resolution(),
		Anchor:     anchor,
		Criteria:   criteria,
		Strict:     req.Strict || defaults.Strict,
	}, nil
}

// violationKind maps a validation failure to its wire error code.
func violationKind(err error) string {
	var (
		resErr *timecheck.ResolutionError
		perErr *timecheck.PeriodicityError
		dupErr *timecheck.DuplicateError
	)
	switch {
	case errors.As(err, &resErr):
		return "resolution_violation"
	case errors.As(err, &perErr):
		return "periodicity_violation"
	case errors.As(err, &dupErr):
		return "duplicate_timestamps"
	default:
		return "validation_failed"
	}
}
