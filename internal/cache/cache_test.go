package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashdesk/internal/domain"
)

func TestNoopReportCacheAlwaysMisses(t *testing.T) {
	var c ReportCache = NoopReportCache{}

	require.NoError(t, c.Set(context.Background(), "cs-1", &domain.SessionReport{}, time.Minute))

	report, ok, err := c.Get(context.Background(), "cs-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, report)
}

func TestReportKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "cashdesk:report:cs-1", reportKey("cs-1"))
}
