package template

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestTemplates_AreValidJSON(t *testing.T) {
	err := errors.New(`upstream said "no" \ twice`)

	tests := []struct {
		name   string
		render func(error) []byte
		status int
	}{
		{"unavailable", Unavailable, 503},
		{"too many requests", TooManyRequests, 429},
		{"internal error", InternalError, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b body
			require.NoError(t, json.Unmarshal(tt.render(err), &b))
			assert.Equal(t, tt.status, b.Status)
			assert.Equal(t, err.Error(), b.Message)
		})
	}
}
