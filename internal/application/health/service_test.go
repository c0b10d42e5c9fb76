package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"workspace-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestCollect_OK(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	require.NoError(t, mr.Set(middleware.KeyReqTotal, "10"))
	require.NoError(t, mr.Set(middleware.KeyReqErrors, "1"))
	require.NoError(t, mr.Set(middleware.KeyResTime, "50"))
	require.NoError(t, mr.Set(middleware.KeyResCount, "10"))
	require.NoError(t, mr.Set(middleware.KeyStartTime, "2026-01-02T03:04:05Z"))

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/health", r.URL.Path)
	}))
	defer idp.Close()

	report := NewChecker(pinger{}, rdb, idp.URL).Collect(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "connected", report.Dependencies["identity_provider"].Status)
	assert.Equal(t, 10, report.Traffic.TotalRequests)
	assert.Equal(t, "90.0", report.Traffic.SuccessRate)
	assert.Equal(t, "5.00", report.Traffic.AvgResponseTime)
	require.NotNil(t, report.Traffic.Since)
	assert.Equal(t, 2026, report.Traffic.Since.Year())
}

func TestCollect_DatabaseDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	report := NewChecker(pinger{err: errors.New("down")}, rdb, "").Collect(context.Background())
	assert.Equal(t, "issue", report.Status)
	assert.Equal(t, "error", report.Dependencies["database"].Status)
	_, hasIdP := report.Dependencies["identity_provider"]
	assert.False(t, hasIdP)

	report = NewChecker(nil, nil, "").Collect(context.Background())
	assert.Equal(t, "disconnected", report.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", report.Dependencies["redis"].Status)
}
