package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/binods1313/MutationMechanic-sub000/server/internal/errors"
	"github.com/binods1313/MutationMechanic-sub000/server/service/history"
	"github.com/binods1313/MutationMechanic-sub000/server/timezone"
	"github.com/binods1313/MutationMechanic-sub000/store"
)

// ListHistoryResponse is the body of GET /history.
type ListHistoryResponse struct {
	Records []*store.HistoryRecord `json:"records"`
}

// CreateHistoryRecordResponse is the body of POST /history.
type CreateHistoryRecordResponse struct {
	ID string `json:"id"`
}

// BatchRequest selects records by id.
type BatchRequest struct {
	IDs []string `json:"ids"`
	// Archived is the flag set by batchArchive; it defaults to true.
	Archived *bool `json:"archived,omitempty"`
}

// BatchResponse reports how many records a batch operation changed.
type BatchResponse struct {
	Affected int64 `json:"affected"`
}

// ListHistory returns records newest first.
// GET /api/v1/history?start=&end=&day=&tz=&gene=&filter=&includeArchived=
func (s *APIV1Service) ListHistory(c echo.Context) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return err
	}
	records, err := s.HistoryService.ListRecords(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListHistoryResponse{Records: records})
}

// CreateHistoryRecord stores an analysis result.
// POST /api/v1/history
func (s *APIV1Service) CreateHistoryRecord(c echo.Context) error {
	request := &history.CreateRecordRequest{}
	if err := c.Bind(request); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}
	if !s.HistoryService.Durable() {
		return apierrors.ServiceUnavailable("history storage is unavailable")
	}
	id, err := s.HistoryService.AddRecord(c.Request().Context(), request)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CreateHistoryRecordResponse{ID: id})
}

// GetHistoryRecord returns one record.
// GET /api/v1/history/:id
func (s *APIV1Service) GetHistoryRecord(c echo.Context) error {
	record, err := s.HistoryService.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if record == nil {
		return apierrors.NotFound(fmt.Sprintf("history record %s not found", c.Param("id")))
	}
	return c.JSON(http.StatusOK, record)
}

// UpdateHistoryRecord applies a partial update and returns the updated record.
// PATCH /api/v1/history/:id
func (s *APIV1Service) UpdateHistoryRecord(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	patch := &history.RecordPatch{}
	if err := c.Bind(patch); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}

	existing, err := s.HistoryService.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apierrors.NotFound(fmt.Sprintf("history record %s not found", id))
	}
	if err := s.HistoryService.UpdateRecord(ctx, id, patch); err != nil {
		return err
	}
	updated, err := s.HistoryService.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteHistoryRecord removes one record.
// DELETE /api/v1/history/:id
func (s *APIV1Service) DeleteHistoryRecord(c echo.Context) error {
	if err := s.HistoryService.DeleteRecord(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearHistory removes every record.
// DELETE /api/v1/history
func (s *APIV1Service) ClearHistory(c echo.Context) error {
	if err := s.HistoryService.ClearHistory(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// BatchDeleteHistory removes the listed records.
// POST /api/v1/history/batchDelete
func (s *APIV1Service) BatchDeleteHistory(c echo.Context) error {
	request, err := bindBatchRequest(c)
	if err != nil {
		return err
	}
	n, err := s.HistoryService.DeleteRecords(c.Request().Context(), request.IDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BatchResponse{Affected: n})
}

// BatchArchiveHistory sets the archived flag on the listed records.
// POST /api/v1/history/batchArchive
func (s *APIV1Service) BatchArchiveHistory(c echo.Context) error {
	request, err := bindBatchRequest(c)
	if err != nil {
		return err
	}
	archived := true
	if request.Archived != nil {
		archived = *request.Archived
	}
	n, err := s.HistoryService.SetArchived(c.Request().Context(), request.IDs, archived)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BatchResponse{Affected: n})
}

// GetHistoryStats returns the aggregate statistics snapshot.
// GET /api/v1/history/stats
func (s *APIV1Service) GetHistoryStats(c echo.Context) error {
	stats, err := s.HistoryService.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// ExportHistory renders the selected records as a downloadable report.
// GET /api/v1/history/export?format=json|csv|text|html&fields=&tz=
func (s *APIV1Service) ExportHistory(c echo.Context) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return err
	}
	format := c.QueryParam("format")
	if format == "" {
		format = history.FormatJSON
	}
	var fields []string
	if v := c.QueryParam("fields"); v != "" {
		fields = splitList(v)
	}

	loc, err := parseLocation(c)
	if err != nil {
		return err
	}

	records, err := s.HistoryService.ListRecords(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	body, err := history.Export(records, history.ExportOptions{Format: format, Fields: fields, Location: loc})
	if err != nil {
		return apierrors.InvalidArgument(err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="mutationmechanic-history.%s"`, exportExtension(format)))
	return c.Blob(http.StatusOK, history.ContentType(format), body)
}

// GetHistoryFeed renders recent records as RSS or Atom.
// GET /api/v1/history/feed?format=rss|atom&limit=
func (s *APIV1Service) GetHistoryFeed(c echo.Context) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return err
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return apierrors.InvalidArgument("limit must be a non-negative integer")
		}
	}

	records, err := s.HistoryService.ListRecords(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	format := c.QueryParam("format")
	out, err := history.Feed(records, history.FeedOptions{
		Format: format,
		Link:   c.Scheme() + "://" + c.Request().Host,
		Limit:  limit,
	})
	if err != nil {
		return apierrors.InvalidArgument(err.Error())
	}
	contentType := "application/rss+xml; charset=utf-8"
	if format == "atom" {
		contentType = "application/atom+xml; charset=utf-8"
	}
	return c.Blob(http.StatusOK, contentType, []byte(out))
}

func parseListOptions(c echo.Context) (*history.ListOptions, error) {
	opts := &history.ListOptions{}
	var err error
	if opts.StartTs, err = parseTimestamp(c, "start"); err != nil {
		return nil, err
	}
	if opts.EndTs, err = parseTimestamp(c, "end"); err != nil {
		return nil, err
	}
	if day := c.QueryParam("day"); day != "" {
		if opts.StartTs != nil || opts.EndTs != nil {
			return nil, apierrors.InvalidArgument("day cannot be combined with start or end")
		}
		loc, err := parseLocation(c)
		if err != nil {
			return nil, err
		}
		start, end, err := timezone.DayRange(day, loc)
		if err != nil {
			return nil, apierrors.InvalidArgument(err.Error())
		}
		opts.StartTs, opts.EndTs = &start, &end
	}
	if opts.StartTs != nil && opts.EndTs != nil && *opts.StartTs > *opts.EndTs {
		return nil, apierrors.InvalidArgument("start must not be after end")
	}
	if gene := strings.TrimSpace(c.QueryParam("gene")); gene != "" {
		opts.Gene = &gene
	}
	if v := c.QueryParam("includeArchived"); v != "" {
		if opts.IncludeArchived, err = strconv.ParseBool(v); err != nil {
			return nil, apierrors.InvalidArgument("includeArchived must be a boolean")
		}
	}
	if expr := strings.TrimSpace(c.QueryParam("filter")); expr != "" {
		if opts.Filter, err = history.CompileFilter(expr); err != nil {
			return nil, apierrors.InvalidArgument(err.Error())
		}
	}
	return opts, nil
}

func parseLocation(c echo.Context) (*time.Location, error) {
	loc, err := timezone.ParseTimezone(c.QueryParam("tz"))
	if err != nil {
		return nil, apierrors.InvalidArgument(err.Error())
	}
	return loc, nil
}

func parseTimestamp(c echo.Context, name string) (*int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apierrors.InvalidArgument(fmt.Sprintf("%s must be epoch milliseconds", name))
	}
	return &ts, nil
}

func bindBatchRequest(c echo.Context) (*BatchRequest, error) {
	request := &BatchRequest{}
	if err := c.Bind(request); err != nil {
		return nil, apierrors.InvalidArgument("invalid request body")
	}
	if len(request.IDs) == 0 {
		return nil, apierrors.InvalidArgument("ids must not be empty")
	}
	return request, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func exportExtension(format string) string {
	switch format {
	case history.FormatText:
		return "txt"
	default:
		return format
	}
}
