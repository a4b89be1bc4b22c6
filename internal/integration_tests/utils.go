package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stormlens-backend/internal/database"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

// startMinio runs a MinIO container for the duration of the test and returns
// its http endpoint.
func startMinio(t *testing.T, ctx context.Context) string {
	container, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "starting minio container")

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()), "terminating minio container")
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err, "getting minio connection string")

	return fmt.Sprintf("http://%s", connStr)
}

// createDB runs a postgres container for the duration of the test and
// returns a migrated database handle on it.
func createDB(t *testing.T) *gorm.DB {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err, "starting postgres container")

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()), "terminating postgres container")
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "getting postgres connection string")

	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

// httpRequest drives one request through the handler and decodes the body
// into dest. Any status other than 200 is an error carrying the response
// body.
func httpRequest(api http.Handler, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rec.Code, rec.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
