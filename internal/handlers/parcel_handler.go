package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/services"
)

// ParcelHandler handles parcel lookups.
type ParcelHandler struct {
	service services.ParcelService
}

// NewParcelHandler creates a new ParcelHandler instance.
func NewParcelHandler(service services.ParcelService) *ParcelHandler {
	return &ParcelHandler{
		service: service,
	}
}

// ParcelResponse represents the response for parcel endpoints.
type ParcelResponse struct {
	Parcel *models.TaxParcel `json:"parcel"`
}

// Get handles GET /api/v1/parcels/:parcelNumber. The number may be given in
// any common punctuation ("1-23-45", "12345").
func (h *ParcelHandler) Get(c *gin.Context) {
	parcel, err := h.service.LookupParcel(c.Request.Context(), c.Param("parcelNumber"))
	if err != nil {
		serviceError(c, err, "Failed to look up parcel")
		return
	}

	c.JSON(http.StatusOK, ParcelResponse{Parcel: parcel})
}
