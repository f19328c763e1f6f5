// Package httperror maps service and gateway errors onto huma status errors.
package httperror

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/service"
)

// From converts err to a huma error. msg is used for unexpected errors, whose
// detail is kept out of the response.
func From(err error, msg string) error {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return huma.NewError(http.StatusBadRequest, validation.Error())
	case errors.Is(err, service.ErrValidation):
		return huma.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNotDisplaying):
		return huma.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidTransition):
		return huma.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidSignature):
		return huma.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrPaymentLink):
		return huma.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, chillpay.ErrUnconfigured), errors.Is(err, chillpay.ErrRejected):
		return huma.NewError(http.StatusBadRequest, chillpay.Note(err))
	}
	return huma.NewError(http.StatusInternalServerError, msg, err)
}
