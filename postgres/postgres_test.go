package postgres

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/scriptbox/internal/recordertest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestRecorder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("scriptbox"),
		tcpostgres.WithUsername("scriptbox"),
		tcpostgres.WithPassword("scriptbox"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	recorder, err := NewRecorder(ctx, dsn)
	require.NoError(t, err)
	defer recorder.Close()

	recordertest.Run(t, recorder)

	// Creating the schema again is a no-op.
	again, err := NewRecorder(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
