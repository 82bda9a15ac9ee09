package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordInsert(10, time.Millisecond, nil)
	c.RecordFlush(10, time.Millisecond, nil)
	c.RecordMerge(2, 1, time.Millisecond, nil)
	c.RecordBuildIndex(time.Millisecond, errors.New("boom"))
	c.RecordQuery(5, 3, time.Millisecond, nil)
	c.RecordGC(1, 0, time.Millisecond, nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewCollectorRegistersAgainstGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		NewCollector(reg)
	})
}
