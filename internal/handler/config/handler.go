package config

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/config-api/internal/handler"
	"github.com/jwalitptl/config-api/internal/middleware"
	"github.com/jwalitptl/config-api/internal/model"
	configService "github.com/jwalitptl/config-api/internal/service/config"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("scope", func(fl validator.FieldLevel) bool {
			_, err := model.ParseScope(fl.Field().String())
			return err == nil
		})
	}
}

type Handler struct {
	service configService.ConfigServicer
}

func NewHandler(service configService.ConfigServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	configs := r.Group("/configs")
	{
		configs.POST("", h.CreateConfig)
		configs.GET("/:key", h.GetConfig)
		configs.PUT("/:key", h.UpdateConfig)
		configs.POST("/:key/rollback", h.RollbackConfig)
		configs.GET("/:key/history", h.GetHistory)
	}
}

type createConfigRequest struct {
	Key      string  `json:"key" binding:"required"`
	Value    string  `json:"value" binding:"required"`
	Scope    string  `json:"scope" binding:"required,scope"`
	TenantID *string `json:"tenant_id"`
	Domain   string  `json:"domain"`
}

type updateConfigRequest struct {
	Value           string  `json:"value" binding:"required"`
	Scope           string  `json:"scope" binding:"required,scope"`
	TenantID        *string `json:"tenant_id"`
	CompanyID       *string `json:"company_id"`
	ExpectedVersion *int    `json:"expected_version"`
}

type rollbackConfigRequest struct {
	Version   int     `json:"version" binding:"required,gt=0"`
	TenantID  *string `json:"tenant_id"`
	CompanyID *string `json:"company_id"`
}

func (h *Handler) CreateConfig(c *gin.Context) {
	var req createConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	scope, err := model.ParseScope(req.Scope)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	tenantID, err := parseOptionalUUID(req.TenantID, "tenant_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	resp, svcErr := h.service.Create(c.Request.Context(), configService.CreateInput{
		Key:           req.Key,
		Value:         req.Value,
		Scope:         scope,
		TenantID:      tenantID,
		Domain:        req.Domain,
		CorrelationID: middleware.CorrelationID(c),
		ActorID:       middleware.ActorID(c),
	})
	if svcErr != nil {
		handler.RespondError(c, svcErr)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(resp))
}

func (h *Handler) GetConfig(c *gin.Context) {
	query, err := resolveQueryFromRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	resp, svcErr := h.service.GetEffective(c.Request.Context(), c.Param("key"), query)
	if svcErr != nil {
		handler.RespondError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	scope, err := model.ParseScope(req.Scope)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	tenantID, err := parseOptionalUUID(req.TenantID, "tenant_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	companyID, err := parseOptionalUUID(req.CompanyID, "company_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	resp, svcErr := h.service.Update(c.Request.Context(), c.Param("key"), configService.UpdateInput{
		Value:           req.Value,
		Scope:           scope,
		TenantID:        tenantID,
		CompanyID:       companyID,
		ExpectedVersion: req.ExpectedVersion,
		CorrelationID:   middleware.CorrelationID(c),
		ActorID:         middleware.ActorID(c),
	})
	if svcErr != nil {
		handler.RespondError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

func (h *Handler) RollbackConfig(c *gin.Context) {
	var req rollbackConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	tenantID, err := parseOptionalUUID(req.TenantID, "tenant_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	companyID, err := parseOptionalUUID(req.CompanyID, "company_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	resp, svcErr := h.service.Rollback(c.Request.Context(), c.Param("key"), req.Version, configService.RollbackInput{
		TenantID:      tenantID,
		CompanyID:     companyID,
		CorrelationID: middleware.CorrelationID(c),
		ActorID:       middleware.ActorID(c),
	})
	if svcErr != nil {
		handler.RespondError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

func (h *Handler) GetHistory(c *gin.Context) {
	query, err := resolveQueryFromRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	versions, svcErr := h.service.History(c.Request.Context(), c.Param("key"), query)
	if svcErr != nil {
		handler.RespondError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(versions))
}

func resolveQueryFromRequest(c *gin.Context) (configService.ResolveQuery, error) {
	var query configService.ResolveQuery

	tenantID, err := parseOptionalUUIDQuery(c, "tenant_id")
	if err != nil {
		return query, err
	}
	companyID, err := parseOptionalUUIDQuery(c, "company_id")
	if err != nil {
		return query, err
	}
	query.TenantID = tenantID
	query.CompanyID = companyID

	if raw := c.Query("version"); raw != "" {
		version, err := strconv.Atoi(raw)
		if err != nil {
			return query, &invalidParamError{param: "version"}
		}
		query.Version = &version
	}

	return query, nil
}

type invalidParamError struct {
	param string
}

func (e *invalidParamError) Error() string {
	return "invalid " + e.param
}

func parseOptionalUUID(raw *string, name string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, &invalidParamError{param: name}
	}
	return &id, nil
}

func parseOptionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &invalidParamError{param: name}
	}
	return &id, nil
}
