package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"sourcedpos/internal/apierror"
	"sourcedpos/internal/middleware"
	"sourcedpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Report fields by their JSON name so clients can map errors to inputs.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid JSON: "+err.Error()))
		return false
	}
	return runValidation(c, req)
}

// bindQuery is bindAndValidate for query-string filters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid query: "+err.Error()))
		return false
	}
	return runValidation(c, req)
}

func runValidation(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// fieldPath strips the root struct name: "CommitSaleRequest.items[0].quantity"
// becomes "items[0].quantity".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid id"))
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a bare 500.
func writeError(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		stock      *service.InsufficientStockError
		conflict   *service.ConcurrentModificationError
		perm       *service.PermissionError
		failure    *service.CommitFailure
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(validation.Fields))
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, apierror.WithCode("insufficient_stock", stock.Error()))
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, apierror.WithCode("concurrent_modification",
			"The sale was changed by someone else. Reload it and try again."))
	case errors.As(err, &perm):
		c.JSON(http.StatusForbidden, apierror.WithCode("forbidden", perm.Error()))
	case errors.Is(err, service.ErrSaleNotFound):
		c.JSON(http.StatusNotFound, apierror.WithCode("not_found", err.Error()))
	case errors.Is(err, service.ErrSaleVoided):
		c.JSON(http.StatusConflict, apierror.WithCode("sale_voided", err.Error()))
	case errors.Is(err, service.ErrApprovalRequired):
		c.JSON(http.StatusForbidden, apierror.WithCode("approval_required", err.Error()))
	case errors.As(err, &failure):
		logInternal(c, err)
		c.JSON(http.StatusInternalServerError, apierror.WithCode("commit_failed",
			"The sale could not be recorded. Nothing was saved."))
	default:
		logInternal(c, err)
		c.JSON(http.StatusInternalServerError, apierror.New("Internal server error"))
	}
}

func logInternal(c *gin.Context, err error) {
	log.Error().
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Str("route", c.FullPath()).
		Err(err).
		Msg("request failed")
}
