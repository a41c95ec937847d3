package metricspush

import (
	"strings"
	"sync"
)

// Recorder receives domain events for off-site accounting. The default
// is a noop so services can record unconditionally; the real recorder is
// installed only when a push exporter is configured.
type Recorder interface {
	RecordCollection(productCode string)
	RecordPayment(method string)
	RecordRateConflict(productCode string)
	RecordIntegrityFinding(productCode string)
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordCollection(string)       {}
func (noopRecorder) RecordPayment(string)          {}
func (noopRecorder) RecordRateConflict(string)     {}
func (noopRecorder) RecordIntegrityFinding(string) {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordCollection(productCode string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordCollection(productCode)
}

func RecordPayment(method string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordPayment(method)
}

func RecordRateConflict(productCode string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordRateConflict(productCode)
}

func RecordIntegrityFinding(productCode string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordIntegrityFinding(productCode)
}

func (r *recorder) RecordCollection(productCode string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.collectionsRecorded.WithLabelValues(normalizeLabel(productCode)).Inc()
}

func (r *recorder) RecordPayment(method string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.paymentsRecorded.WithLabelValues(normalizeLabel(method)).Inc()
}

func (r *recorder) RecordRateConflict(productCode string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.rateConflicts.WithLabelValues(normalizeLabel(productCode)).Inc()
}

func (r *recorder) RecordIntegrityFinding(productCode string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.integrityFindings.WithLabelValues(normalizeLabel(productCode)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
