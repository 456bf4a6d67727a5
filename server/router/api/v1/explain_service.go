package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/binods1313/MutationMechanic-sub000/server/internal/errors"
)

// ExplainRequest is the body of POST /explain.
type ExplainRequest struct {
	Gene    string `json:"gene"`
	Variant string `json:"variant"`
}

// Explain returns a plain-language explanation of a variant.
// POST /api/v1/explain
func (s *APIV1Service) Explain(c echo.Context) error {
	request := &ExplainRequest{}
	if err := c.Bind(request); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}
	explanation, err := s.ExplainService.Explain(c.Request().Context(), request.Gene, request.Variant)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, explanation)
}
