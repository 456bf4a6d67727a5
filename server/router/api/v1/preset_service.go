package v1

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/binods1313/MutationMechanic-sub000/server/internal/errors"
	"github.com/binods1313/MutationMechanic-sub000/server/service/preset"
)

// maxImportBytes bounds a preset import payload.
const maxImportBytes = 1 << 20

// ListPresetsResponse is the body of GET /presets and POST /presets/import.
type ListPresetsResponse struct {
	Presets []*preset.Preset `json:"presets"`
}

// ListPresets returns presets, most recently modified first.
// GET /api/v1/presets
func (s *APIV1Service) ListPresets(c echo.Context) error {
	return c.JSON(http.StatusOK, ListPresetsResponse{Presets: s.PresetService.GetPresets(c.Request().Context())})
}

// SavePreset creates a preset or merges it into an existing one.
// POST /api/v1/presets
func (s *APIV1Service) SavePreset(c echo.Context) error {
	p := &preset.Preset{}
	if err := c.Bind(p); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}
	saved, err := s.PresetService.SavePreset(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

// DeletePreset removes a preset.
// DELETE /api/v1/presets/:id
func (s *APIV1Service) DeletePreset(c echo.Context) error {
	if err := s.PresetService.DeletePreset(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ImportPresets merges an exported preset file into the collection.
// POST /api/v1/presets/import
func (s *APIV1Service) ImportPresets(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes+1))
	if err != nil {
		return apierrors.InvalidArgument("failed to read import file")
	}
	if len(body) > maxImportBytes {
		return apierrors.InvalidArgument("import file is too large")
	}
	presets, err := s.PresetService.ImportPresets(c.Request().Context(), string(body))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListPresetsResponse{Presets: presets})
}

// ExportPresets downloads the collection as JSON.
// GET /api/v1/presets/export
func (s *APIV1Service) ExportPresets(c echo.Context) error {
	out, err := s.PresetService.ExportPresets(c.Request().Context())
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="mutationmechanic-presets.json"`)
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(out))
}
