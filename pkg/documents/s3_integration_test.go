//go:build integration

package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/carehub/pkg/apperr"
)

// setupMinIO starts MinIO and returns an archive on a fresh bucket.
func setupMinIO(t *testing.T) *S3Archive {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start MinIO container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate MinIO container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	archive, err := NewS3Archive(ctx, S3Config{
		Endpoint:     "http://" + host + ":" + port.Port(),
		Region:       "us-east-1",
		Bucket:       "carehub-invoices",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UsePathStyle: true,
	})
	require.NoError(t, err, "Failed to create archive")
	return archive
}

func TestS3Archive_Integration(t *testing.T) {
	archive := setupMinIO(t)
	ctx := context.Background()

	require.NoError(t, archive.HealthCheck(ctx))

	key := "invoices/2024/03/INV-202403-7-ABCDEF12.txt"
	require.NoError(t, archive.Put(ctx, key, []byte("INVOICE INV-202403-7-ABCDEF12\n"), "text/plain; charset=utf-8"))

	data, err := archive.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "INVOICE INV-202403-7-ABCDEF12\n", string(data))

	// overwriting the same key replaces the document
	require.NoError(t, archive.Put(ctx, key, []byte("amended"), "text/plain; charset=utf-8"))
	data, err = archive.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "amended", string(data))

	_, err = archive.Get(ctx, "invoices/missing.txt")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
