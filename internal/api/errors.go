package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/arcgis"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
)

// toHumaError maps domain errors to HTTP status errors.
func toHumaError(err error) error {
	var (
		loadErr  *session.LoadError
		parseErr *service.FileParseError
		svcErr   *arcgis.ServiceError
		storeErr *service.StorageError
	)

	switch {
	case session.IsUserError(err),
		errors.Is(err, service.ErrEmptyURL),
		errors.Is(err, service.ErrEmptyName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, session.ErrAlreadyLoading),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrNoFields),
		errors.Is(err, session.ErrStaleHandle),
		errors.Is(err, service.ErrDuplicateEndpoint),
		errors.Is(err, service.ErrNothingToSave):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &loadErr), errors.As(err, &parseErr):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &svcErr):
		return huma.Error422UnprocessableEntity(session.UpstreamMessage(err))
	case errors.As(err, &storeErr):
		return huma.Error500InternalServerError(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
