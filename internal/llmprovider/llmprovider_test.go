package llmprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wardenhq/warden/internal/config"
)

func TestNew_UnknownProviderErrors(t *testing.T) {
	_, err := New(context.Background(), config.AIConfig{Provider: "bedrock"})
	assert.Error(t, err)
}
