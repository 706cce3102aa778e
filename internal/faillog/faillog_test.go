package faillog_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/faillog"
	"github.com/wxarchive/station-etl/internal/observability"
)

func frozenClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func TestAppendWritesTabDelimitedEntry(t *testing.T) {
	frozenClock(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "logs", "failures.log")
	l := faillog.New(path, observability.NewMetricsForTesting())

	err := l.Append(faillog.Entry{
		RunID:   "run-1",
		Dataset: domain.DatasetGSOD,
		Country: "ZA",
		Station: "686160-99999",
		Year:    1994,
		Stage:   "download",
		Kind:    domain.KindTransient,
		Message: "fetch failed after 3 attempts",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSuffix(string(raw), "\n")
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 9)
	assert.Equal(t, "2024-03-01T12:30:00Z", fields[0])
	assert.Equal(t, "run-1", fields[1])
	assert.Equal(t, "gsod", fields[2])
	assert.Equal(t, "ZA", fields[3])
	assert.Equal(t, "686160-99999", fields[4])
	assert.Equal(t, "1994", fields[5])
	assert.Equal(t, "download", fields[6])
	assert.Equal(t, "transient", fields[7])
	assert.Equal(t, "fetch failed after 3 attempts", fields[8])
}

func TestAppendAccumulatesAcrossEntries(t *testing.T) {
	frozenClock(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "failures.log")
	l := faillog.New(path, observability.NewMetricsForTesting())

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Append(faillog.Entry{
			RunID: "run-1", Dataset: domain.DatasetGHCND, Country: "ZA",
			Station: "ZA000068262", Year: 1990 + i, Stage: "process",
			Kind: domain.KindParse, Message: "short line",
		}))
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	assert.Len(t, lines, 3)
}

func TestAppendKeepsMessagesOnOneLine(t *testing.T) {
	frozenClock(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "failures.log")
	l := faillog.New(path, observability.NewMetricsForTesting())

	require.NoError(t, l.Append(faillog.Entry{
		RunID: "run-1", Dataset: domain.DatasetGSOD, Country: "ZA",
		Station: "686160-99999", Year: 1994, Stage: "process",
		Kind: domain.KindParse, Message: "line 3:\tunexpected\ntoken\r",
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 1)
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 9)
	assert.Equal(t, "line 3: unexpected token ", fields[8])
}

func TestAppendSafeForConcurrentUse(t *testing.T) {
	frozenClock(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "failures.log")
	l := faillog.New(path, observability.NewMetricsForTesting())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(year int) {
			defer wg.Done()
			_ = l.Append(faillog.Entry{
				RunID: "run-1", Dataset: domain.DatasetISDLite, Country: "ZA",
				Station: "686160-99999", Year: year, Stage: "download",
				Kind: domain.KindTransient, Message: "timeout",
			})
		}(1981 + i)
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		assert.Len(t, strings.Split(line, "\t"), 9)
	}
}
