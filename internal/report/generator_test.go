package report

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui_reseller_bot/internal/panel"
)

type fakeFetcher struct {
	snap panel.Snapshot
	err  error
}

func (f fakeFetcher) FetchSnapshot(context.Context) (panel.Snapshot, error) {
	return f.snap, f.err
}

type recordedFailure struct {
	op  string
	err error
}

type fakeFailures struct {
	entries []recordedFailure
}

func (f *fakeFailures) Record(op string, err error) {
	f.entries = append(f.entries, recordedFailure{op: op, err: err})
}

func newNullLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestTextForFallsBackOnFetchError(t *testing.T) {
	failures := &fakeFailures{}
	gen := NewGenerator(fakeFetcher{err: errors.New("connection refused")}, failures, newNullLogger())

	text := gen.TextFor(context.Background(), []int64{1})

	assert.Equal(t, FallbackMessage, text)
	require.Len(t, failures.entries, 1)
	assert.Contains(t, failures.entries[0].err.Error(), "connection refused")
}

func TestTextForFormatsReport(t *testing.T) {
	snap := panel.Snapshot{
		Inbounds: []panel.Inbound{
			{ID: 1, Clients: []panel.Client{{Email: "a@x", Up: 10, Down: 20}}},
		},
		Online: map[string]struct{}{"a@x": {}},
	}

	gen := NewGenerator(fakeFetcher{snap: snap}, &fakeFailures{}, newNullLogger())

	text := gen.TextFor(context.Background(), []int64{1})

	assert.NotEqual(t, FallbackMessage, text)
	assert.Contains(t, text, "🟢 <b>Online:</b> [ 1 ]")
}

func TestBuildAllCoversEveryInbound(t *testing.T) {
	snap := panel.Snapshot{
		Inbounds: []panel.Inbound{
			{ID: 1, Clients: []panel.Client{{Email: "a@x"}}},
			{ID: 2, Clients: []panel.Client{{Email: "b@x"}}},
		},
	}

	gen := NewGenerator(fakeFetcher{snap: snap}, &fakeFailures{}, newNullLogger())

	rep, err := gen.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.UserCount)
}

func TestBuildForPropagatesErrors(t *testing.T) {
	gen := NewGenerator(fakeFetcher{err: errors.New("boom")}, &fakeFailures{}, newNullLogger())

	_, err := gen.BuildFor(context.Background(), []int64{1})
	require.Error(t, err)
}
