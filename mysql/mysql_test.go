package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/deepnoodle-ai/scriptbox/internal/recordertest"
	"github.com/stretchr/testify/require"
)

func TestNewRecorderInvalidDSN(t *testing.T) {
	_, err := NewRecorder(context.Background(), "not a dsn")
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing mysql dsn")
}

// TestRecorder runs against a live server named by SCRIPTBOX_MYSQL_DSN,
// e.g. "root:secret@tcp(127.0.0.1:3306)/scriptbox". The database must be
// empty.
func TestRecorder(t *testing.T) {
	dsn := os.Getenv("SCRIPTBOX_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SCRIPTBOX_MYSQL_DSN not set")
	}
	recorder, err := NewRecorder(context.Background(), dsn)
	require.NoError(t, err)
	defer recorder.Close()

	recordertest.Run(t, recorder)
}
