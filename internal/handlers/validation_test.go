package handlers

import (
	"testing"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{}
		wantErr string
	}{
		{"valid email", LoginRequest{Email: "user@example.com"}, ""},
		{"missing email", LoginRequest{}, "validation failed: email: this field is required"},
		{"bad email", LoginRequest{Email: "user@"}, "validation failed: email: must be a valid email address"},
		{"unknown action", ManageTrustedIPsRequest{Action: "drop"}, "validation failed: action: must be one of: toggle_auto_login remove_ip clear_all_ips regenerate_magic_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateRequest_WrapsErrValidation(t *testing.T) {
	err := ValidateRequest(ManageTrustedIPsRequest{Action: "remove_ip", IPID: "zz"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "ipId")
}
