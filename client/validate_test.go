package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

func resp(status int, body string) *types.Response {
	return &types.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

func TestValidatorAcceptedStatuses(t *testing.T) {
	v := NewValidator(nil)

	for _, status := range []int{200, 201, 202, 204} {
		assert.NoError(t, v.Validate(resp(status, "")), "status %d", status)
	}

	for _, status := range []int{301, 400, 404, 500} {
		err := v.Validate(resp(status, `{"error":"x"}`))
		require.Error(t, err, "status %d", status)

		var statusErr *apierr.APIError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, status, statusErr.StatusCode)
		assert.Equal(t, []byte(`{"error":"x"}`), statusErr.Body)
	}
}

func TestValidatorCustomAcceptSet(t *testing.T) {
	v := NewValidator(nil).Accept(200, 404)

	assert.NoError(t, v.Validate(resp(404, "")))
	assert.Error(t, v.Validate(resp(201, "")))
}

func TestValidatorNilResponse(t *testing.T) {
	v := NewValidator(nil)
	err := v.Validate(nil)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindRequest, apiErr.Kind)
}

func TestValidatorDisabledByConfig(t *testing.T) {
	cfg := loadConfig(t, `
api:
  baseUrl: https://api.example.com
  validateStatus: false
`)
	v := NewValidatorFromConfig(cfg, nil)
	assert.NoError(t, v.Validate(resp(500, "")))
}

func TestResponsePredicates(t *testing.T) {
	assert.True(t, IsSuccessful(resp(204, "")))
	assert.False(t, IsSuccessful(resp(404, "")))
	assert.False(t, IsSuccessful(nil))

	assert.True(t, IsClientError(resp(404, "")))
	assert.False(t, IsClientError(resp(500, "")))

	assert.True(t, IsServerError(resp(503, "")))
	assert.False(t, IsServerError(resp(404, "")))
	assert.False(t, IsServerError(nil))
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, DecodeJSON(resp(200, `{"id":7,"name":"alice"}`), &out))
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, "alice", out.Name)

	assert.Error(t, DecodeJSON(resp(200, ""), &out))
	assert.Error(t, DecodeJSON(resp(200, "not json"), &out))
	assert.Error(t, DecodeJSON(nil, &out))
}

func TestExtractField(t *testing.T) {
	r := resp(200, `{"token":"abc","ttl":60}`)

	v, err := ExtractField(r, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = ExtractField(r, "missing")
	require.Error(t, err)

	m, err := ExtractMap(r)
	require.NoError(t, err)
	assert.Len(t, m, 2)
}
