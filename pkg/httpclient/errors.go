package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

// DownstreamErrorResponse mirrors the httputil error envelope so structured
// errors from sibling services can be decoded.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an AppError. Any 5xx, structured or not, becomes a
// service-unavailable error so callers can treat it as retryable.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", string(bodyBytes)
	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}

	if resp.StatusCode >= 500 {
		if code == "" {
			code = "SERVICE_UNAVAILABLE"
		}
		return &apperrors.AppError{
			Code:    code,
			Message: fmt.Sprintf("%s returned status %d: %s", serviceName, resp.StatusCode, message),
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	}
	if code == "" {
		return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, message)
	}
	return mapClientError(resp.StatusCode, code, message, serviceName)
}

func mapClientError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch status {
	case http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case http.StatusUnprocessableEntity:
		return apperrors.Unprocessable(qualifiedMsg)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}
