package measure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/measure-importer/internal/extract"
	"github.com/ehr/measure-importer/internal/platform/auth"
	"github.com/ehr/measure-importer/pkg/pagination"
)

type Handler struct {
	svc           *Service
	filterDefault bool
}

// NewHandler serves svc over HTTP. filterDefault applies when a request does
// not set the filter query parameter.
func NewHandler(svc *Service, filterDefault bool) *Handler {
	return &Handler{svc: svc, filterDefault: filterDefault}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReader, auth.RoleWriter))
	read.POST("/extract", h.Extract)
	read.POST("/measures/:id/extract", h.ExtractStored)
	read.GET("/measures", h.ListMeasures)
	read.GET("/measures/:id", h.GetMeasure)

	write := api.Group("", auth.RequireRole(auth.RoleWriter))
	write.POST("/measures", h.CreateMeasure)
	write.DELETE("/measures/:id", h.DeleteMeasure)
}

type extractRequest struct {
	Definition Definition `json:"definition"`
	Document   string     `json:"document"`
}

type createRequest struct {
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Definition  Definition `json:"definition"`
}

// Extract runs an inline definition against an inline document.
func (h *Handler) Extract(c echo.Context) error {
	var req extractRequest
	if err := decodeBody(c, &req, req.fromYAML); err != nil {
		return err
	}
	if len(req.Definition) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "definition is required")
	}
	if req.Document == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document is required")
	}

	filter, err := h.filterParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Extract(c.Request().Context(), req.Definition, []byte(req.Document), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// ExtractStored runs a stored definition against the XML request body.
func (h *Handler) ExtractStored(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	filter, err := h.filterParam(c)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httpError(err)
	}
	out, err := h.svc.ExtractStored(c.Request().Context(), id, body, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateMeasure(c echo.Context) error {
	var req createRequest
	if err := decodeBody(c, &req, req.fromYAML); err != nil {
		return err
	}
	m := &Measure{Name: req.Name, Description: req.Description, Definition: req.Definition}
	if err := h.svc.CreateMeasure(c.Request().Context(), m); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMeasure(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetMeasure(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMeasures(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Measure{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) DeleteMeasure(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteMeasure(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) filterParam(c echo.Context) (bool, error) {
	v := c.QueryParam("filter")
	if v == "" {
		return h.filterDefault, nil
	}
	filter, err := strconv.ParseBool(v)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "filter must be true or false")
	}
	return filter, nil
}

// -- Request decoding --

var yamlMediaTypes = map[string]bool{
	"application/yaml":   true,
	"application/x-yaml": true,
	"text/yaml":          true,
}

// decodeBody reads a JSON body into v, or hands an ordered YAML document to
// fromYAML when the request declares a YAML media type.
func decodeBody(c echo.Context, v interface{}, fromYAML func(yaml.MapSlice) error) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httpError(err)
	}

	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if yamlMediaTypes[mediaType] {
		var doc yaml.MapSlice
		if err := yaml.UnmarshalWithOptions(body, &doc, yaml.UseOrderedMap()); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid YAML body: %v", err))
		}
		if err := fromYAML(doc); err != nil {
			return httpError(err)
		}
		return nil
	}

	if err := json.Unmarshal(body, v); err != nil {
		if errors.Is(err, ErrInvalidDefinition) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func lookup(doc yaml.MapSlice, key string) (interface{}, bool) {
	for _, item := range doc {
		if fmt.Sprint(item.Key) == key {
			return item.Value, true
		}
	}
	return nil, false
}

func definitionField(doc yaml.MapSlice) (Definition, error) {
	v, ok := lookup(doc, "definition")
	if !ok || v == nil {
		return nil, nil
	}
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, invalidDefinition("definition must be a mapping, got %T", v)
	}
	return DefinitionFromMapSlice(ms)
}

func stringField(doc yaml.MapSlice, key string) (string, error) {
	v, ok := lookup(doc, key)
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a string", key))
	}
	return s, nil
}

func (r *extractRequest) fromYAML(doc yaml.MapSlice) error {
	def, err := definitionField(doc)
	if err != nil {
		return err
	}
	r.Definition = def
	r.Document, err = stringField(doc, "document")
	return err
}

func (r *createRequest) fromYAML(doc yaml.MapSlice) error {
	def, err := definitionField(doc)
	if err != nil {
		return err
	}
	r.Definition = def
	if r.Name, err = stringField(doc, "name"); err != nil {
		return err
	}
	desc, err := stringField(doc, "description")
	if err != nil {
		return err
	}
	if desc != "" {
		r.Description = &desc
	}
	return nil
}

// httpError maps service errors to HTTP status codes.
func httpError(err error) error {
	var (
		httpErr     *echo.HTTPError
		queryErr    *extract.QueryError
		categoryErr *UnknownCategoryError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &queryErr), errors.Is(err, ErrInvalidDocument):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &categoryErr), errors.Is(err, ErrInvalidDefinition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	case errors.Is(err, ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStorageDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, "measure storage is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
