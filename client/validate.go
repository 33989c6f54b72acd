package client

import (
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/config"
	"github.com/apiharness/sdk/types"
)

// defaultAcceptedStatuses are the status codes a response must carry to
// pass validation when no custom set is configured.
var defaultAcceptedStatuses = []int{200, 201, 202, 204}

// Validator checks completed responses against an accepted status set.
// Validation is a judgment on a finished exchange; a rejected response is
// never retried.
type Validator struct {
	accepted       map[int]struct{}
	validateStatus bool
	logBody        bool
	logger         *slog.Logger
}

// NewValidator creates a validator accepting the default status set
// (200, 201, 202, 204).
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		accepted:       make(map[int]struct{}),
		validateStatus: true,
		logger:         logger,
	}
	for _, code := range defaultAcceptedStatuses {
		v.accepted[code] = struct{}{}
	}
	return v
}

// NewValidatorFromConfig creates a validator honoring the api.validateStatus
// and api.logging.response toggles.
func NewValidatorFromConfig(cfg *config.Provider, logger *slog.Logger) *Validator {
	v := NewValidator(logger)
	v.validateStatus = cfg.GetBoolDefault("api.validateStatus", true)
	v.logBody = cfg.GetBoolDefault("api.logging.response", false)
	return v
}

// Accept replaces the accepted status set.
func (v *Validator) Accept(codes ...int) *Validator {
	v.accepted = make(map[int]struct{}, len(codes))
	for _, code := range codes {
		v.accepted[code] = struct{}{}
	}
	return v
}

// Validate checks the response against the accepted status set. A nil
// response fails with a request error; a rejected status fails with an
// *apierr.APIError carrying the status code and body.
func (v *Validator) Validate(resp *types.Response) error {
	if resp == nil {
		return apierr.NewRequestError("client.Validator.Validate",
			fmt.Errorf("no response to validate"))
	}

	if v.logBody {
		v.logger.Info("received response",
			"status", resp.StatusCode,
			"request_id", resp.RequestID,
			"body", string(resp.Body))
	}

	if !v.validateStatus {
		return nil
	}

	if _, ok := v.accepted[resp.StatusCode]; !ok {
		v.logger.Warn("response failed status validation",
			"status", resp.StatusCode,
			"request_id", resp.RequestID)
		return apierr.NewValidationError("client.Validator.Validate", &apierr.APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       resp.Body,
		})
	}

	return nil
}

// IsSuccessful reports whether the response carries a 2xx status.
func IsSuccessful(resp *types.Response) bool {
	return resp != nil && resp.IsSuccess()
}

// IsClientError reports whether the response carries a 4xx status.
func IsClientError(resp *types.Response) bool {
	return resp != nil && resp.IsClientError()
}

// IsServerError reports whether the response carries a 5xx status.
func IsServerError(resp *types.Response) bool {
	return resp != nil && resp.IsServerError()
}

// DecodeJSON unmarshals the response body into out.
func DecodeJSON(resp *types.Response, out any) error {
	if resp == nil || len(resp.Body) == 0 {
		return apierr.NewValidationError("client.DecodeJSON",
			fmt.Errorf("empty response body"))
	}
	if err := sonic.Unmarshal(resp.Body, out); err != nil {
		return apierr.NewValidationError("client.DecodeJSON",
			fmt.Errorf("decoding response body: %w", err))
	}
	return nil
}

// ExtractMap decodes the response body as a JSON object.
func ExtractMap(resp *types.Response) (map[string]any, error) {
	var m map[string]any
	if err := DecodeJSON(resp, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ExtractField returns a single top-level field from a JSON object body.
func ExtractField(resp *types.Response, field string) (any, error) {
	m, err := ExtractMap(resp)
	if err != nil {
		return nil, err
	}
	v, ok := m[field]
	if !ok {
		return nil, apierr.NewValidationError("client.ExtractField",
			fmt.Errorf("field %q not present in response body", field))
	}
	return v, nil
}
