package traffic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairForge/marketplace/internal/loadtest"
)

// sampleLog collects recorded samples.
type sampleLog struct {
	mu      sync.Mutex
	samples []loadtest.Sample
}

func (l *sampleLog) Record(s loadtest.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, s)
}

func (l *sampleLog) all() []loadtest.Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]loadtest.Sample(nil), l.samples...)
}

func (l *sampleLog) failures() []loadtest.Sample {
	var out []loadtest.Sample
	for _, s := range l.all() {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

func (l *sampleLog) named(name string) []loadtest.Sample {
	var out []loadtest.Sample
	for _, s := range l.all() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func newTestClient(t *testing.T, host string) (*Client, *sampleLog) {
	t.Helper()
	log := &sampleLog{}
	c, err := NewClient(host, log, 1)
	require.NoError(t, err)
	return c, log
}
