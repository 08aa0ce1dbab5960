package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/checklist"
	"github.com/dubox-platform/production-service/pkg/api"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/middleware"
)

// ProductionService is the workflow surface the handlers drive.
// *application.Coordinator implements it.
type ProductionService interface {
	RegisterBox(ctx context.Context, cmd application.RegisterBoxCommand) (*application.BoxStatusDTO, error)
	RelocateBox(ctx context.Context, cmd application.RelocateBoxCommand) (*application.BoxStatusDTO, error)
	HoldBox(ctx context.Context, cmd application.HoldBoxCommand) (*application.BoxStatusDTO, error)
	ReleaseBox(ctx context.Context, cmd application.BoxCommand) (*application.BoxStatusDTO, error)
	DispatchBox(ctx context.Context, cmd application.BoxCommand) (*application.BoxStatusDTO, error)
	StartActivity(ctx context.Context, cmd application.ActivityCommand) (*application.BoxStatusDTO, error)
	CompleteActivity(ctx context.Context, cmd application.ActivityCommand) (*application.BoxStatusDTO, error)
	RaiseWIR(ctx context.Context, cmd application.RaiseWIRCommand) (*application.WIRHistoryDTO, error)
	SubmitWIRChecklist(ctx context.Context, cmd application.SubmitChecklistCommand) (*application.WIRHistoryDTO, error)
	ApproveWIR(ctx context.Context, cmd application.ApproveWIRCommand) (*application.WIRHistoryDTO, error)
	RejectWIR(ctx context.Context, cmd application.RejectWIRCommand) (*application.WIRHistoryDTO, error)
	StatusOf(ctx context.Context, query application.StatusQuery) (*application.BoxStatusDTO, error)
	WIRHistory(ctx context.Context, query application.WIRHistoryQuery) (*application.WIRHistoryDTO, error)
	ListOverdueWIRs(ctx context.Context, query application.OverdueWIRsQuery) ([]application.OverdueWIRDTO, error)
	CatalogSummary(ctx context.Context, query application.CatalogQuery) (*application.CatalogSummaryDTO, error)
	ResolveActivities(ctx context.Context, query application.ResolveActivitiesQuery) (*application.ResolvedActivitiesDTO, error)
	Checklist(ctx context.Context, query application.ChecklistQuery) (*application.ChecklistDTO, error)
}

// ProductionHandlers contains handlers for boxes, activities and inspections
type ProductionHandlers struct {
	service ProductionService
	logger  *logging.Logger
}

// NewProductionHandlers creates a new ProductionHandlers
func NewProductionHandlers(service ProductionService, logger *logging.Logger) *ProductionHandlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ProductionHandlers{
		service: service,
		logger:  logger.WithComponent("http"),
	}
}

// RegisterRoutes registers production routes on the router
func (h *ProductionHandlers) RegisterRoutes(router *gin.RouterGroup) {
	boxes := router.Group("/boxes")
	{
		boxes.POST("", h.RegisterBox)
		boxes.GET("/:boxId", h.GetBoxStatus)
		boxes.PUT("/:boxId/location", h.RelocateBox)
		boxes.POST("/:boxId/hold", h.HoldBox)
		boxes.POST("/:boxId/release", h.ReleaseBox)
		boxes.POST("/:boxId/dispatch", h.DispatchBox)
		boxes.POST("/:boxId/activities/:code/start", h.StartActivity)
		boxes.POST("/:boxId/activities/:code/complete", h.CompleteActivity)
		boxes.POST("/:boxId/wirs", h.RaiseWIR)
		boxes.GET("/:boxId/wirs/:code", h.GetWIRHistory)
		boxes.POST("/:boxId/wirs/:code/submit", h.SubmitChecklist)
		boxes.POST("/:boxId/wirs/:code/approve", h.ApproveWIR)
		boxes.POST("/:boxId/wirs/:code/reject", h.RejectWIR)
	}

	router.GET("/wirs/overdue", h.ListOverdueWIRs)

	cat := router.Group("/catalog")
	{
		cat.GET("", h.GetCatalog)
		cat.GET("/box-types/:type/activities", h.ResolveActivities)
		cat.GET("/checklists/:code", h.GetChecklist)
	}
}

type boxURI struct {
	BoxID string `uri:"boxId" binding:"required,box_id"`
}

type activityURI struct {
	BoxID string `uri:"boxId" binding:"required,box_id"`
	Code  string `uri:"code" binding:"required,activity_code"`
}

type checkpointURI struct {
	BoxID string `uri:"boxId" binding:"required,box_id"`
	Code  string `uri:"code" binding:"required,max=64"`
}

// RegisterBoxRequest is the body of POST /boxes
type RegisterBoxRequest struct {
	Tag      string `json:"tag" binding:"required,max=64"`
	BoxType  string `json:"boxType" binding:"required"`
	SubType  string `json:"subType"`
	Location string `json:"location" binding:"required,max=128"`
}

// RelocateBoxRequest is the body of PUT /boxes/:boxId/location
type RelocateBoxRequest struct {
	Location string `json:"location" binding:"required,max=128"`
}

// HoldBoxRequest is the body of POST /boxes/:boxId/hold
type HoldBoxRequest struct {
	Reason string `json:"reason" binding:"required,max=256"`
}

// RaiseWIRRequest is the body of POST /boxes/:boxId/wirs
type RaiseWIRRequest struct {
	Checkpoint string `json:"checkpoint" binding:"required,max=64"`
}

// ChecklistResponse is one answered checklist item
type ChecklistResponse struct {
	ItemID string `json:"itemId" binding:"required"`
	Result string `json:"result" binding:"required,item_result"`
	Note   string `json:"note"`
}

// SubmitChecklistRequest is the body of POST /boxes/:boxId/wirs/:code/submit
type SubmitChecklistRequest struct {
	Responses []ChecklistResponse `json:"responses" binding:"required,dive"`
}

// ApproveWIRRequest is the optional body of POST /boxes/:boxId/wirs/:code/approve
type ApproveWIRRequest struct {
	InspectorName string   `json:"inspectorName" binding:"max=128"`
	InspectorRole string   `json:"inspectorRole" binding:"max=64"`
	Conditions    []string `json:"conditions" binding:"dive,required"`
}

// RejectWIRRequest is the body of POST /boxes/:boxId/wirs/:code/reject
type RejectWIRRequest struct {
	InspectorName string `json:"inspectorName" binding:"max=128"`
	InspectorRole string `json:"inspectorRole" binding:"max=64"`
	Notes         string `json:"notes" binding:"required"`
}

// RegisterBox handles box registration
func (h *ProductionHandlers) RegisterBox(c *gin.Context) {
	var req RegisterBoxRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return
	}

	box, err := h.service.RegisterBox(c.Request.Context(), application.RegisterBoxCommand{
		UserID:   middleware.GetUserID(c),
		Tag:      req.Tag,
		BoxType:  req.BoxType,
		SubType:  req.SubType,
		Location: req.Location,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, box)
}

// GetBoxStatus handles reading the progress of a box
func (h *ProductionHandlers) GetBoxStatus(c *gin.Context) {
	var uri boxURI
	if !bindURI(c, &uri) {
		return
	}

	box, err := h.service.StatusOf(c.Request.Context(), application.StatusQuery{
		UserID: middleware.GetUserID(c),
		BoxID:  uri.BoxID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, box)
}

// RelocateBox handles moving a box to another location
func (h *ProductionHandlers) RelocateBox(c *gin.Context) {
	var uri boxURI
	if !bindURI(c, &uri) {
		return
	}
	var req RelocateBoxRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return
	}

	box, err := h.service.RelocateBox(c.Request.Context(), application.RelocateBoxCommand{
		UserID:   middleware.GetUserID(c),
		BoxID:    uri.BoxID,
		Location: req.Location,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, box)
}

// HoldBox handles stopping production on a box
func (h *ProductionHandlers) HoldBox(c *gin.Context) {
	var uri boxURI
	if !bindURI(c, &uri) {
		return
	}
	var req HoldBoxRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return
	}

	box, err := h.service.HoldBox(c.Request.Context(), application.HoldBoxCommand{
		UserID: middleware.GetUserID(c),
		BoxID:  uri.BoxID,
		Reason: req.Reason,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, box)
}

// ReleaseBox handles returning a held box to production
func (h *ProductionHandlers) ReleaseBox(c *gin.Context) {
	h.changeBoxStatus(c, h.service.ReleaseBox)
}

// DispatchBox handles shipping a finished box
func (h *ProductionHandlers) DispatchBox(c *gin.Context) {
	h.changeBoxStatus(c, h.service.DispatchBox)
}

func (h *ProductionHandlers) changeBoxStatus(c *gin.Context, apply func(context.Context, application.BoxCommand) (*application.BoxStatusDTO, error)) {
	var uri boxURI
	if !bindURI(c, &uri) {
		return
	}

	box, err := apply(c.Request.Context(), application.BoxCommand{
		UserID: middleware.GetUserID(c),
		BoxID:  uri.BoxID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, box)
}

// StartActivity handles moving an activity to in progress
func (h *ProductionHandlers) StartActivity(c *gin.Context) {
	h.transitionActivity(c, h.service.StartActivity)
}

// CompleteActivity handles completing an activity
func (h *ProductionHandlers) CompleteActivity(c *gin.Context) {
	h.transitionActivity(c, h.service.CompleteActivity)
}

func (h *ProductionHandlers) transitionActivity(c *gin.Context, apply func(context.Context, application.ActivityCommand) (*application.BoxStatusDTO, error)) {
	var uri activityURI
	if !bindURI(c, &uri) {
		return
	}

	box, err := apply(c.Request.Context(), application.ActivityCommand{
		UserID:       middleware.GetUserID(c),
		BoxID:        uri.BoxID,
		ActivityCode: uri.Code,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, box)
}

// RaiseWIR handles opening an inspection request
func (h *ProductionHandlers) RaiseWIR(c *gin.Context) {
	var uri boxURI
	if !bindURI(c, &uri) {
		return
	}
	var req RaiseWIRRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return
	}

	history, err := h.service.RaiseWIR(c.Request.Context(), application.RaiseWIRCommand{
		UserID:     middleware.GetUserID(c),
		BoxID:      uri.BoxID,
		Checkpoint: req.Checkpoint,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, history)
}

// GetWIRHistory handles listing the attempts of a checkpoint
func (h *ProductionHandlers) GetWIRHistory(c *gin.Context) {
	var uri checkpointURI
	if !bindURI(c, &uri) {
		return
	}

	history, err := h.service.WIRHistory(c.Request.Context(), application.WIRHistoryQuery{
		UserID:     middleware.GetUserID(c),
		BoxID:      uri.BoxID,
		Checkpoint: uri.Code,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// SubmitChecklist handles submitting checklist responses
func (h *ProductionHandlers) SubmitChecklist(c *gin.Context) {
	var uri checkpointURI
	if !bindURI(c, &uri) {
		return
	}
	var req SubmitChecklistRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return
	}

	responses := make([]checklist.Response, len(req.Responses))
	for i, r := range req.Responses {
		responses[i] = checklist.Response{ItemID: r.ItemID, Result: checklist.Result(r.Result), Note: r.Note}
	}

	history, err := h.service.SubmitWIRChecklist(c.Request.Context(), application.SubmitChecklistCommand{
		UserID:     middleware.GetUserID(c),
		BoxID:      uri.BoxID,
		Checkpoint: uri.Code,
		Responses:  responses,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// ApproveWIR handles approving the submitted attempt
func (h *ProductionHandlers) ApproveWIR(c *gin.Context) {
	var uri checkpointURI
	if !bindURI(c, &uri) {
		return
	}
	var req ApproveWIRRequest
	if c.Request.ContentLength != 0 {
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
	}

	history, err := h.service.ApproveWIR(c.Request.Context(), application.ApproveWIRCommand{
		UserID:        middleware.GetUserID(c),
		BoxID:         uri.BoxID,
		Checkpoint:    uri.Code,
		InspectorName: req.InspectorName,
		InspectorRole: req.InspectorRole,
		Conditions:    req.Conditions,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// RejectWIR handles rejecting the submitted attempt
func (h *ProductionHandlers) RejectWIR(c *gin.Context) {
	var uri checkpointURI
	if !bindURI(c, &uri) {
		return
	}
	var req RejectWIRRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return
	}

	history, err := h.service.RejectWIR(c.Request.Context(), application.RejectWIRCommand{
		UserID:        middleware.GetUserID(c),
		BoxID:         uri.BoxID,
		Checkpoint:    uri.Code,
		InspectorName: req.InspectorName,
		InspectorRole: req.InspectorRole,
		Notes:         req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// ListOverdueWIRs handles listing pending attempts past the SLA
func (h *ProductionHandlers) ListOverdueWIRs(c *gin.Context) {
	overdue, err := h.service.ListOverdueWIRs(c.Request.Context(), application.OverdueWIRsQuery{
		UserID: middleware.GetUserID(c),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, overdue)
}

// GetCatalog handles the catalog summary
func (h *ProductionHandlers) GetCatalog(c *gin.Context) {
	summary, err := h.service.CatalogSummary(c.Request.Context(), application.CatalogQuery{
		UserID: middleware.GetUserID(c),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ResolveActivities handles listing the activities a box type requires
func (h *ProductionHandlers) ResolveActivities(c *gin.Context) {
	resolved, err := h.service.ResolveActivities(c.Request.Context(), application.ResolveActivitiesQuery{
		UserID:  middleware.GetUserID(c),
		BoxType: c.Param("type"),
		SubType: c.Query("subType"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resolved)
}

// GetChecklist handles reading a checklist definition by code or WIR code
func (h *ProductionHandlers) GetChecklist(c *gin.Context) {
	cl, err := h.service.Checklist(c.Request.Context(), application.ChecklistQuery{
		UserID: middleware.GetUserID(c),
		Code:   c.Param("code"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, cl)
}

func bindURI(c *gin.Context, obj interface{}) bool {
	if appErr := api.BindURIAndValidate(c, obj); appErr != nil {
		middleware.AbortWithAppError(c, appErr)
		return false
	}
	return true
}
