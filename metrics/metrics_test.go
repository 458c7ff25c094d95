package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
)

var (
	_ interfaces.HookRecorder  = (*Metrics)(nil)
	_ interfaces.BatchRecorder = (*Metrics)(nil)
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New("test", reg)
	require.NoError(t, err)

	m.RecordHook("User", "ssn", "save")
	m.RecordHook("User", "ssn", "save")
	m.RecordHook("User", "ssn", "read")
	m.RecordToggle("User", "encrypt")
	m.RecordRewrite("User", nil)
	m.RecordRewrite("User", errors.New("boom"))
	m.RecordCastFailure("User")
	m.RecordBatch("User", 10, 4, 1, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.hookInvocations.WithLabelValues("User", "ssn", "save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hookInvocations.WithLabelValues("User", "ssn", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toggles.WithLabelValues("User", "encrypt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewrites.WithLabelValues("User", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewrites.WithLabelValues("User", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.castFailures.WithLabelValues("User")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.batchDocuments.WithLabelValues("User", "unchanged")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.batchDocuments.WithLabelValues("User", "changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchDocuments.WithLabelValues("User", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchDuration))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New("", reg)
	require.NoError(t, err)

	_, err = New("", reg)
	var already prometheus.AlreadyRegisteredError
	assert.True(t, errors.As(err, &already), "got %v", err)
}
