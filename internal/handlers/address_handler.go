package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsvalues/PACS-DataBridge/internal/address"
	apierrors "github.com/bsvalues/PACS-DataBridge/internal/errors"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
	"github.com/bsvalues/PACS-DataBridge/internal/services"
)

// AddressHandler handles ad hoc address resolution requests.
type AddressHandler struct {
	service services.AddressService
}

// NewAddressHandler creates a new AddressHandler instance.
func NewAddressHandler(service services.AddressService) *AddressHandler {
	return &AddressHandler{
		service: service,
	}
}

// MatchRequest is the body of POST /api/v1/addresses/match.
type MatchRequest struct {
	MinConfidence *float64 `json:"minConfidence" binding:"omitempty,gte=0,lte=100"`
	Address       string   `json:"address" binding:"required,max=512"`
}

// ManualMatchBody is the body of POST /api/v1/addresses/manual.
type ManualMatchBody struct {
	StagingRecordID string `json:"stagingRecordId" binding:"omitempty,uuid"`
	JobID           string `json:"jobId" binding:"omitempty,uuid"`
	Address         string `json:"address" binding:"required,max=512"`
	ParcelNumber    string `json:"parcelNumber" binding:"required,max=64"`
}

// MatchListRequest holds the query parameters of GET /api/v1/addresses/matches.
type MatchListRequest struct {
	StagingRecordID string `form:"stagingRecordId" binding:"omitempty,uuid"`
	JobID           string `form:"jobId" binding:"omitempty,uuid"`
	Limit           int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// MatchResponse wraps a resolution result.
type MatchResponse struct {
	Result  address.Result `json:"result"`
	Matched bool           `json:"matched"`
}

// AuditResponse wraps a single audit row.
type AuditResponse struct {
	Match *models.AddressMatch `json:"match"`
}

// AuditListResponse wraps audit rows.
type AuditListResponse struct {
	Matches []models.AddressMatch `json:"matches"`
	Count   int                   `json:"count"`
}

// Match handles POST /api/v1/addresses/match. An address with no candidate
// is a 200 with matched=false.
func (h *AddressHandler) Match(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}

	minConfidence := float64(address.DefaultMinConfidence)
	if req.MinConfidence != nil {
		minConfidence = *req.MinConfidence
	}

	result, err := h.service.Match(c.Request.Context(), req.Address, minConfidence)
	if err != nil {
		serviceError(c, err, "Failed to match address")
		return
	}

	c.JSON(http.StatusOK, MatchResponse{Result: result, Matched: result.Matched()})
}

// ManualMatch handles POST /api/v1/addresses/manual.
func (h *AddressHandler) ManualMatch(c *gin.Context) {
	var req ManualMatchBody
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}

	match, err := h.service.ManualMatch(c.Request.Context(), services.ManualMatchRequest{
		StagingRecordID: optionalUUID(req.StagingRecordID),
		JobID:           optionalUUID(req.JobID),
		Address:         req.Address,
		ParcelNumber:    req.ParcelNumber,
	})
	if err != nil {
		serviceError(c, err, "Failed to record manual match")
		return
	}

	c.JSON(http.StatusCreated, AuditResponse{Match: match})
}

// Matches handles GET /api/v1/addresses/matches.
func (h *AddressHandler) Matches(c *gin.Context) {
	var req MatchListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}
	if req.StagingRecordID == "" && req.JobID == "" {
		apierrors.BadRequest(c, "stagingRecordId or jobId is required", nil)
		return
	}

	matches, err := h.service.Matches(c.Request.Context(), repository.MatchFilter{
		StagingRecordID: optionalUUID(req.StagingRecordID),
		JobID:           optionalUUID(req.JobID),
		Limit:           req.Limit,
	})
	if err != nil {
		serviceError(c, err, "Failed to list address matches")
		return
	}

	c.JSON(http.StatusOK, AuditListResponse{Matches: matches, Count: len(matches)})
}
