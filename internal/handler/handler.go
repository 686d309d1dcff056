package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/httputil"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
	"github.com/jwalitptl/care-scheduling/pkg/validator"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Fail records err for the error middleware and writes the mapped response.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	httputil.RespondWithError(c, err)
}

// ParseID reads a uuid path parameter.
func ParseID(c *gin.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, errors.Validation("invalid "+param, err)
	}
	return id, nil
}

// Bind decodes and validates a JSON body.
func Bind(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return validator.Translate(err)
	}
	return nil
}

// BindOptional is Bind for endpoints where the body may be omitted.
func BindOptional(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return Bind(c, obj)
}

// QueryUUID returns uuid.Nil when the parameter is absent.
func QueryUUID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Validation("invalid "+name, err)
	}
	return id, nil
}

func QueryDate(c *gin.Context, name string) (*timeslot.Date, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := timeslot.ParseDate(raw)
	if err != nil {
		return nil, errors.Validation("invalid "+name, err)
	}
	return &d, nil
}

func QueryBool(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Validation("invalid "+name, err)
	}
	return &b, nil
}

func QueryPagination(c *gin.Context) (model.Pagination, error) {
	p := model.Pagination{Limit: DefaultPageSize}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return p, errors.Validation("invalid limit", err)
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		p.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, errors.Validation("invalid offset", err)
		}
		p.Offset = n
	}
	return p, nil
}
