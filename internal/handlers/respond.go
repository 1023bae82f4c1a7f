package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apierrors "github.com/bsvalues/PACS-DataBridge/internal/errors"
	"github.com/bsvalues/PACS-DataBridge/internal/services"
)

// serviceError maps service sentinels onto the API envelope. Anything
// unrecognized is a 500 carrying fallback as its message.
func serviceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		apierrors.NotFound(c, "Import job not found")
	case errors.Is(err, services.ErrParcelNotFound):
		apierrors.NotFound(c, "Parcel not found")
	case errors.Is(err, services.ErrInvalidImport),
		errors.Is(err, services.ErrInvalidSource),
		errors.Is(err, services.ErrInvalidAddress),
		errors.Is(err, services.ErrInvalidParcelNumber):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, services.ErrJobNotRunning):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrShuttingDown):
		apierrors.ServiceUnavailable(c, "Server is shutting down", err)
	default:
		apierrors.InternalServerError(c, fallback, err)
	}
}

// pathUUID parses a UUID path parameter, answering 400 when it is malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apierrors.BadRequest(c, "Invalid "+name, map[string]interface{}{
			name: c.Param(name),
		})
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an optional UUID string already checked by binding.
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
