package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusWithoutChecks(t *testing.T) {
	st := NewService().Status(context.Background())
	assert.True(t, st.OK)
	assert.Empty(t, st.Checks)
}

func TestStatusReportsDegradedDependencies(t *testing.T) {
	svc := NewService()
	svc.Register("analysis", func(ctx context.Context) error { return errors.New("dial tcp 10.0.0.7:8000: connection refused") })
	svc.Register("redis", func(ctx context.Context) error { return nil })
	svc.Register("database", func(ctx context.Context) error { return errors.New("timeout") })

	st := svc.Status(context.Background())
	assert.True(t, st.OK)
	assert.Equal(t, []string{"analysis", "database"}, st.Degraded)
	assert.Equal(t, "ok", st.Checks["redis"])
	assert.Equal(t, "error", st.Checks["analysis"])
	assert.Equal(t, "error", st.Checks["database"])
	assert.NotContains(t, st.Checks["analysis"], "10.0.0.7")
}

func TestStatusBoundsSlowChecks(t *testing.T) {
	svc := NewService()
	svc.timeout = 10 * time.Millisecond
	svc.Register("analysis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	st := svc.Status(context.Background())
	assert.Equal(t, []string{"analysis"}, st.Degraded)
	assert.Equal(t, "timeout", st.Checks["analysis"])
}
