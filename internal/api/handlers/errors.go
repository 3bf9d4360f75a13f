package handlers

import (
	"errors"
	"io/fs"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/repository"
	"github.com/RMahshie/resonara/pkg/measerr"
)

// apiError maps measurement and repository errors onto HTTP statuses
func apiError(msg string, err error) error {
	switch {
	case errors.Is(err, measerr.ErrConfiguration), errors.Is(err, measerr.ErrValidation):
		return huma.Error400BadRequest(msg, err)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, measerr.ErrMissingKey), errors.Is(err, fs.ErrNotExist):
		return huma.Error404NotFound(msg, err)
	case errors.Is(err, measerr.ErrDriverTimeout):
		return huma.Error504GatewayTimeout(msg, err)
	case errors.Is(err, measerr.ErrDriverCommunication):
		return huma.Error502BadGateway(msg, err)
	}
	log.Error().Err(err).Msg(msg)
	return huma.Error500InternalServerError(msg, err)
}
