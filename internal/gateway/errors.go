package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	httperr "github.com/ecogrid-lab/ecogrid-gateway/internal/core/errors"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/stream"
	"github.com/gin-gonic/gin"
)

type detailer interface {
	Details() map[string]interface{}
}

// classify maps an error to its HTTP status and error type.
func classify(err error) (int, string) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrInvalidParams), errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusBadRequest, httperr.HttpInvalidParamsError
	case errors.Is(err, apiclient.ErrUnauthorized):
		return http.StatusUnauthorized, httperr.HttpSessionEndedError
	case errors.Is(err, stream.ErrUnknownSite):
		return http.StatusNotFound, httperr.HttpNotFoundError
	case errors.Is(err, stream.ErrHubFull), errors.Is(err, stream.ErrHubClosed):
		return http.StatusServiceUnavailable, httperr.HttpStreamDisabledError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, httperr.HttpUnavailableError
	case errors.Is(err, apiclient.ErrDecode):
		return http.StatusBadGateway, httperr.HttpUpstreamError
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Status == http.StatusNotFound:
			return http.StatusNotFound, httperr.HttpNotFoundError
		case apiErr.Temporary():
			return http.StatusBadGateway, httperr.HttpUnavailableError
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return apiErr.Status, httperr.HttpUpstreamError
		}
		return http.StatusBadGateway, httperr.HttpUpstreamError
	case errors.Is(err, context.Canceled):
		return 499, httperr.HttpInternalError
	}
	if apiclient.IsRetryable(err) {
		return http.StatusBadGateway, httperr.HttpUnavailableError
	}
	return http.StatusInternalServerError, httperr.HttpInternalError
}

func errorBody(err error, message string) (int, httperr.ErrorResponse) {
	status, kind := classify(err)
	resp := httperr.ErrorResponse{
		ErrorType: kind,
		Message:   message,
	}
	var d detailer
	if errors.As(err, &d) {
		details := d.Details()
		details["error"] = err.Error()
		resp.Details = details
	} else {
		resp.Details = err.Error()
	}
	return status, resp
}

// respondError writes the error response for err.
func respondError(c *gin.Context, err error, message string) {
	status, resp := errorBody(err, message)
	if status >= http.StatusInternalServerError {
		slog.Warn("[Gateway] Request failed",
			"path", c.FullPath(),
			"status", status,
			"request_id", c.GetString(RequestIDKey),
			"error", err,
		)
	}
	c.JSON(status, resp)
}

func respondBadRequest(c *gin.Context, kind, message string, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: kind,
		Message:   message,
		Details:   err.Error(),
	})
}

func respondUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
		ErrorType: httperr.HttpStreamDisabledError,
		Message:   message,
	})
}
