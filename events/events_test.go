package events

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndCounts(t *testing.T) {
	s := New(nil)
	id := NewScanID()

	s.Record(id, "example.test.", HaveDS)
	s.Record(id, "other.test.", BootNoop)
	s.Record(id, "other.test.", BootNoop)

	counts := s.Counts()
	assert.Equal(t, 1, counts[HaveDS])
	assert.Equal(t, 2, counts[BootNoop])
	assert.Equal(t, 0, counts[DNSTimeout])
}

func TestReportDomains(t *testing.T) {
	s := New(nil)
	id := NewScanID()

	s.Record(id, "a.test.", ChildCDSInconsistent)
	s.Record(id, "b.test.", ChildCDSInconsistent)

	report := s.Report()
	require.Contains(t, report, ChildCDSInconsistent)
	assert.ElementsMatch(t, []string{"a.test.", "b.test."}, report[ChildCDSInconsistent])
}

func TestReportIsolatesCaller(t *testing.T) {
	s := New(nil)
	s.Record(NewScanID(), "a.test.", HaveDS)

	report := s.Report()
	report[HaveDS] = append(report[HaveDS], "mutated")

	report2 := s.Report()
	assert.Equal(t, []string{"a.test."}, report2[HaveDS])
}

func TestSinkConcurrentRecord(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.Record(uuid.New(), "concurrent.test.", NoCDS)
		}()
	}
	wg.Wait()

	counts := s.Counts()
	assert.Equal(t, n, counts[NoCDS])
}
