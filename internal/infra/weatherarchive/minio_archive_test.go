package weatherarchive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

func TestObjectKey(t *testing.T) {
	snap := insight.WeatherSnapshot{Timestamp: time.Date(2025, 10, 19, 8, 0, 0, 0, time.FixedZone("SGT", 8*3600))}
	key := objectKey(insight.Location{Latitude: 1.3521, Longitude: 103.8198}, snap)
	require.Equal(t, "weather/1.35_103.82/2025/10/19/1760832000.json", key)
}

func TestSanitizeEndpoint(t *testing.T) {
	require.Equal(t, "acct.r2.cloudflarestorage.com", sanitizeEndpoint("https://acct.r2.cloudflarestorage.com/bucket"))
	require.Equal(t, "localhost:9000", sanitizeEndpoint(" http://localhost:9000 "))
	require.Equal(t, "minio:9000", sanitizeEndpoint("minio:9000"))
}

func TestArchiveSkipsEmptyPayload(t *testing.T) {
	archive, err := NewMinioArchive("http://localhost:9000", "key", "secret", "weather-raw", "auto", nil)
	require.NoError(t, err)
	require.NoError(t, archive.Archive(context.Background(), insight.Location{}, insight.WeatherReading{}))
}

func TestNewMinioArchiveRequiresBucket(t *testing.T) {
	_, err := NewMinioArchive("localhost:9000", "key", "secret", " ", "", nil)
	require.Error(t, err)
}
