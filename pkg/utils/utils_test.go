package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Message string `json:"message" validate:"required,max=10"`
	Tone    string `json:"tone" validate:"omitempty,max=4"`
}

func TestDecodeJSON(t *testing.T) {
	var p payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, DecodeJSON(req, &p))
	assert.Equal(t, "hi", p.Message)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"","tone":"toolong"}`))
	err := DecodeJSON(req, &payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message (required)")
	assert.Contains(t, err.Error(), "tone (max)")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
	assert.Error(t, DecodeJSON(req, &payload{}))
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	SendSSEEvent(resp, resp, "start", map[string]string{"status": "ok"})

	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Equal(t, "event: start\ndata: {\"status\":\"ok\"}\n\n", resp.Body.String())
}
