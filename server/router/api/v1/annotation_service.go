package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/binods1313/MutationMechanic-sub000/server/internal/errors"
	"github.com/binods1313/MutationMechanic-sub000/server/service/annotation"
)

// maxCompareQueries bounds one comparison request.
const maxCompareQueries = 20

// CompareRequest is the body of POST /annotations/compare.
type CompareRequest struct {
	Queries []*annotation.Query `json:"queries"`
}

// CompareResponse is the result of a comparison, in query order.
type CompareResponse struct {
	Results []*annotation.CompareResult `json:"results"`
}

// GetAnnotations returns the genomic context bundle of one variant.
// GET /api/v1/annotations?gene=&variant=&id=
func (s *APIV1Service) GetAnnotations(c echo.Context) error {
	q := &annotation.Query{
		Gene:        c.QueryParam("gene"),
		Variant:     c.QueryParam("variant"),
		Identifiers: c.QueryParams()["id"],
	}
	bundle, err := s.AnnotationService.Aggregate(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bundle)
}

// CompareAnnotations aggregates several variants side by side.
// POST /api/v1/annotations/compare
func (s *APIV1Service) CompareAnnotations(c echo.Context) error {
	request := &CompareRequest{}
	if err := c.Bind(request); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}
	if len(request.Queries) == 0 {
		return apierrors.InvalidArgument("queries must not be empty")
	}
	if len(request.Queries) > maxCompareQueries {
		return apierrors.InvalidArgument(fmt.Sprintf("at most %d queries can be compared", maxCompareQueries))
	}
	for i, q := range request.Queries {
		if q == nil {
			return apierrors.InvalidArgument(fmt.Sprintf("query %d is empty", i+1))
		}
	}
	results, err := s.AnnotationService.Compare(c.Request().Context(), request.Queries)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CompareResponse{Results: results})
}
