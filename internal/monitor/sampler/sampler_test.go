package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	pid     int32
	primed  bool
	cpu     float64
	rss     uint64
	cpuErr  error
	rssErr  error
	primes  int
	readErr error
}

func (h *fakeHandle) PID() int32   { return h.pid }
func (h *fakeHandle) Primed() bool { return h.primed }

func (h *fakeHandle) CPUPercent(ctx context.Context) (float64, error) {
	if !h.primed {
		if h.cpuErr != nil {
			return 0, h.cpuErr
		}
		h.primed = true
		h.primes++
		return 0, nil
	}
	if h.readErr != nil {
		return 0, h.readErr
	}
	return h.cpu, nil
}

func (h *fakeHandle) RSS(ctx context.Context) (uint64, error) {
	if h.rssErr != nil {
		return 0, h.rssErr
	}
	return h.rss, nil
}

type fakeProvider struct {
	entries []Entry
	handles map[int32]*fakeHandle
	listErr error
	opened  []int32
}

func (p *fakeProvider) List(ctx context.Context) ([]Entry, error) {
	return p.entries, p.listErr
}

func (p *fakeProvider) Open(ctx context.Context, pid int32) (Handle, error) {
	p.opened = append(p.opened, pid)
	h, ok := p.handles[pid]
	if !ok {
		return nil, errors.New("no such process")
	}
	return h, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSampler(p Provider, cores int) *Sampler {
	return New(p, Options{LogicalCPUs: cores, Now: func() time.Time { return fixedNow }})
}

func TestSampleAggregatesInstances(t *testing.T) {
	p := &fakeProvider{
		entries: []Entry{
			{PID: 300, Name: "chrome"},
			{PID: 100, Name: "Chrome"},
			{PID: 200, Name: "bash"},
		},
		handles: map[int32]*fakeHandle{
			300: {pid: 300, cpu: 150.0, rss: 100 * 1024 * 1024},
			100: {pid: 100, cpu: 50.0, rss: 50 * 1024 * 1024},
			200: {pid: 200, cpu: 1, rss: 1},
		},
	}

	row := newTestSampler(p, 4).Sample(context.Background(), "CHROME")

	assert.Equal(t, "CHROME", row.Name)
	assert.Equal(t, Running, row.Status)
	assert.Equal(t, []int32{100, 300}, row.PIDs)
	assert.Equal(t, 200.0, row.CPUPercent)
	assert.Equal(t, 50.0, row.CPUPercentNormalized)
	assert.Equal(t, 150.0, row.MemoryMB)
	assert.Equal(t, fixedNow, row.LastChecked)

	first, ok := row.FirstPID()
	assert.True(t, ok)
	assert.Equal(t, int32(100), first)
	assert.NotContains(t, p.opened, int32(200))
}

func TestSampleNotRunning(t *testing.T) {
	p := &fakeProvider{entries: []Entry{{PID: 1, Name: "init"}}}

	row := newTestSampler(p, 2).Sample(context.Background(), "nonexistent_process")

	assert.Equal(t, NotRunning, row.Status)
	assert.Empty(t, row.PIDs)
	assert.NotNil(t, row.PIDs)
	assert.Zero(t, row.CPUPercent)
	assert.Zero(t, row.CPUPercentNormalized)
	assert.Zero(t, row.MemoryMB)
	_, ok := row.FirstPID()
	assert.False(t, ok)
}

func TestSampleMatchesWholeNamesOnly(t *testing.T) {
	p := &fakeProvider{
		entries: []Entry{{PID: 5, Name: "python3"}, {PID: 6, Name: "mypython"}},
		handles: map[int32]*fakeHandle{5: {pid: 5}, 6: {pid: 6}},
	}

	row := newTestSampler(p, 1).Sample(context.Background(), "python")
	assert.Equal(t, NotRunning, row.Status)
	assert.Empty(t, p.opened)
}

func TestSampleSkipsVanishedProcesses(t *testing.T) {
	p := &fakeProvider{
		entries: []Entry{
			{PID: 10, Name: "worker"},
			{PID: 11, Name: "worker"},
			{PID: 12, Name: "worker"},
			{PID: 13, Name: "worker"},
		},
		handles: map[int32]*fakeHandle{
			// 10 is gone by the time it is opened
			11: {pid: 11, cpuErr: errors.New("access denied")},
			12: {pid: 12, primed: true, cpu: 12.5, rss: 2 * 1024 * 1024},
			13: {pid: 13, primed: true, rssErr: errors.New("exited")},
		},
	}

	row := newTestSampler(p, 1).Sample(context.Background(), "worker")
	assert.Equal(t, Running, row.Status)
	assert.Equal(t, []int32{12}, row.PIDs)
	assert.Equal(t, 12.5, row.CPUPercent)
	assert.Equal(t, 2.0, row.MemoryMB)
}

func TestSampleAllKeepsOrderAndNeverDoubleCounts(t *testing.T) {
	p := &fakeProvider{
		entries: []Entry{
			{PID: 1, Name: "a"},
			{PID: 1, Name: "a"},
			{PID: 2, Name: "b"},
		},
		handles: map[int32]*fakeHandle{
			1: {pid: 1, primed: true, cpu: 10, rss: 1024 * 1024},
			2: {pid: 2, primed: true, cpu: 20, rss: 1024 * 1024},
		},
	}

	rows := newTestSampler(p, 1).SampleAll(context.Background(), []string{"B", "missing", "a", "A"})
	require.Len(t, rows, 4)

	assert.Equal(t, "B", rows[0].Name)
	assert.Equal(t, []int32{2}, rows[0].PIDs)
	assert.Equal(t, NotRunning, rows[1].Status)
	assert.Equal(t, []int32{1}, rows[2].PIDs)
	assert.Equal(t, 10.0, rows[2].CPUPercent)
	// a case-variant duplicate gets nothing rather than counting PID 1 twice
	assert.Equal(t, NotRunning, rows[3].Status)
}

func TestSampleAllEnumerationFailure(t *testing.T) {
	p := &fakeProvider{listErr: errors.New("boom")}

	rows := newTestSampler(p, 1).SampleAll(context.Background(), []string{"a", "b"})
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, NotRunning, r.Status)
		assert.Equal(t, fixedNow, r.LastChecked)
	}
}

func TestSampleAllEmpty(t *testing.T) {
	rows := newTestSampler(&fakeProvider{}, 1).SampleAll(context.Background(), nil)
	assert.Empty(t, rows)
}

func TestNormalizedCPUIsCapped(t *testing.T) {
	p := &fakeProvider{
		entries: []Entry{{PID: 7, Name: "spin"}},
		handles: map[int32]*fakeHandle{7: {pid: 7, primed: true, cpu: 250}},
	}

	row := newTestSampler(p, 2).Sample(context.Background(), "spin")
	assert.Equal(t, 250.0, row.CPUPercent)
	assert.Equal(t, 100.0, row.CPUPercentNormalized)
}

func TestPrimingWaitsOnceAndHonorsContext(t *testing.T) {
	h1 := &fakeHandle{pid: 1, cpu: 5}
	h2 := &fakeHandle{pid: 2, cpu: 5}
	p := &fakeProvider{
		entries: []Entry{{PID: 1, Name: "x"}, {PID: 2, Name: "x"}},
		handles: map[int32]*fakeHandle{1: h1, 2: h2},
	}
	s := New(p, Options{CPUWindow: time.Hour, LogicalCPUs: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	row := s.Sample(ctx, "x")
	assert.Less(t, int64(time.Since(start)), int64(10*time.Second))

	assert.Equal(t, 1, h1.primes)
	assert.Equal(t, 1, h2.primes)
	assert.Equal(t, Running, row.Status)
	assert.Equal(t, 10.0, row.CPUPercent)

	// primed handles are not primed again and no wait happens
	start = time.Now()
	s.Sample(context.Background(), "x")
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
	assert.Equal(t, 1, h1.primes)
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 1.235, Round3(1.23456))
	assert.Equal(t, 0.0, Round3(0.0001))
	assert.Equal(t, 2.0, Round3(2))
}
