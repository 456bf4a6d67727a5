package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLLMConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr string
	}{
		{name: "valid", cfg: LLMConfig{APIKey: "k", Model: "gpt-4o-mini"}},
		{name: "missing key", cfg: LLMConfig{Model: "gpt-4o-mini"}, wantErr: "API key"},
		{name: "missing model", cfg: LLMConfig{APIKey: "k"}, wantErr: "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
