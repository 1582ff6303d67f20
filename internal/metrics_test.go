package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/lychee-technology/sigmaql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewValidationMetrics("test", reg)
	require.NoError(t, err)

	m.ObserveAccepted(50*time.Microsecond, 2)
	m.ObserveAccepted(20*time.Microsecond, 0)
	m.ObserveRejected(10*time.Microsecond, sigmaql.NewUnknownFieldError("users", "nope"))
	m.ObserveRejected(10*time.Microsecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.validations.WithLabelValues(outcomeAccepted, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues(outcomeRejected, string(sigmaql.ErrorKindUnknownField))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues(outcomeRejected, string(sigmaql.ErrorKindInternal))))

	assert.Equal(t, 3, testutil.CollectAndCount(m.validations))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	count, err := testutil.GatherAndCount(reg, "test_validations_total", "test_validation_duration_seconds", "test_include_depth")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestValidationMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewValidationMetrics("dup", reg)
	require.NoError(t, err)

	_, err = NewValidationMetrics("dup", reg)
	require.Error(t, err)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}

func TestValidationMetrics_NilRecorder(t *testing.T) {
	var m *ValidationMetrics
	assert.NotPanics(t, func() {
		m.ObserveAccepted(time.Millisecond, 1)
		m.ObserveRejected(time.Millisecond, errors.New("boom"))
	})
}

func TestValidationMetrics_DefaultNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewValidationMetrics("", reg)
	require.NoError(t, err)
	m.ObserveAccepted(time.Microsecond, 1)

	count, err := testutil.GatherAndCount(reg, "sigmaql_validations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
