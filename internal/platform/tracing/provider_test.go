package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"instahelp/internal/platform/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{ServiceName: "instahelp"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
