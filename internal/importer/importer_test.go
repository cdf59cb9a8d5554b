package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/nlmsend/internal/api"
	"github.com/tmc/nlmsend/internal/rpc"
)

func TestParseLinks(t *testing.T) {
	text := "https://go.dev/\n" +
		"  http://example.com/a  \n" +
		"\n" +
		"ftp://example.com/file\n" +
		"not a link\n" +
		"https://\n" +
		"https://go.dev/\n" +
		"https://youtube.com/watch?v=abc\r\n"

	got := ParseLinks(text)
	assert.Equal(t, []string{
		"https://go.dev/",
		"http://example.com/a",
		"https://youtube.com/watch?v=abc",
	}, got)
}

func TestParseLinksEmpty(t *testing.T) {
	got := ParseLinks("")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

type fakeAdder struct {
	calls    [][]string
	failOn   map[int]bool
	waits    []int
	notReady bool
	waitErr  error
}

func (f *fakeAdder) AddSources(ctx context.Context, notebookID string, urls []string) error {
	n := len(f.calls)
	f.calls = append(f.calls, urls)
	if f.failOn[n] {
		return errors.New("host rejected batch")
	}
	return nil
}

func (f *fakeAdder) WaitUntilReady(ctx context.Context, notebookID string, maxAttempts int) (bool, error) {
	f.waits = append(f.waits, maxAttempts)
	if f.waitErr != nil {
		return false, f.waitErr
	}
	return !f.notReady, nil
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	return out
}

func TestImportBatches(t *testing.T) {
	adder := &fakeAdder{}
	var progress []Progress
	imp := New(adder, WithProgress(func(p Progress) { progress = append(progress, p) }))

	res, err := imp.Import(context.Background(), "nb", urls(25))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 25}, res)

	require.Len(t, adder.calls, 3)
	assert.Len(t, adder.calls[0], 10)
	assert.Len(t, adder.calls[1], 10)
	assert.Len(t, adder.calls[2], 5)
	assert.Equal(t, []Progress{{10, 25}, {20, 25}, {25, 25}}, progress)
	assert.Equal(t, []int{api.DefaultWaitAttempts, api.DefaultWaitAttempts, api.DefaultWaitAttempts}, adder.waits)
}

// doerFunc adapts a function to api.Doer.
type doerFunc func(ctx context.Context, call rpc.Call) (string, error)

func (f doerFunc) Do(ctx context.Context, call rpc.Call) (string, error) { return f(ctx, call) }

func TestImportPollsBetweenBatches(t *testing.T) {
	var ids []string
	host := doerFunc(func(ctx context.Context, call rpc.Call) (string, error) {
		ids = append(ids, call.ID)
		return `)]}'` + "\n\n" + `[["wrb.fr","` + call.ID + `","[]",null,null,null,"generic"]]`, nil
	})

	res, err := New(api.New(host)).Import(context.Background(), "nb", urls(15))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 15}, res)
	assert.Equal(t, []string{
		rpc.RPCAddSources, rpc.RPCGetProject,
		rpc.RPCAddSources, rpc.RPCGetProject,
	}, ids)
}

func TestImportNotReadyIsSoft(t *testing.T) {
	for name, adder := range map[string]*fakeAdder{
		"never ready": {notReady: true},
		"poll error":  {waitErr: errors.New("RPC call failed: 500")},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := New(adder, WithWaitAttempts(2)).Import(context.Background(), "nb", urls(12))
			require.NoError(t, err)
			assert.Equal(t, Result{Imported: 12}, res)
			assert.Len(t, adder.calls, 2)
			assert.Equal(t, []int{2, 2}, adder.waits)
		})
	}
}

func TestImportCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adder := &fakeAdder{}
	host := &cancellingAdder{fakeAdder: adder, cancel: cancel}
	res, err := New(host).Import(ctx, "nb", urls(25))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{Imported: 10}, res)
	assert.Len(t, adder.calls, 1)
}

// cancellingAdder cancels the import during the first readiness poll.
type cancellingAdder struct {
	*fakeAdder
	cancel context.CancelFunc
}

func (c *cancellingAdder) WaitUntilReady(ctx context.Context, notebookID string, maxAttempts int) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func TestWithLoggerNil(t *testing.T) {
	adder := &fakeAdder{failOn: map[int]bool{0: true}}
	res, err := New(adder, WithLogger(nil)).Import(context.Background(), "nb", urls(3))
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 3}, res)
}

func TestImportContinuesAfterFailedBatch(t *testing.T) {
	adder := &fakeAdder{failOn: map[int]bool{1: true}}
	res, err := New(adder).Import(context.Background(), "nb", urls(25))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 15, Failed: 10}, res)
	assert.Len(t, adder.calls, 3)
	assert.Len(t, adder.waits, 2, "no readiness poll after the failed batch")
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	adder := &fakeAdder{}
	res, err := New(adder, WithBatchSize(5)).Import(ctx, "nb", urls(12))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, adder.calls)
}

func TestDetectPageType(t *testing.T) {
	tests := map[string]PageType{
		"https://www.youtube.com/playlist?list=PL1":    PagePlaylist,
		"https://www.youtube.com/watch?v=abc&list=PL1": PagePlaylistVideo,
		"https://www.youtube.com/watch?v=abc":          PageVideo,
		"https://www.youtube.com/@golang":              PageChannel,
		"https://www.youtube.com/channel/UC123":        PageChannel,
		"https://www.youtube.com/c/golang":             PageChannel,
		"https://www.youtube.com/":                     PageNone,
		"https://youtu.be/abc":                         PageNone,
		"https://example.com/watch?v=abc":              PageNone,
	}
	for u, want := range tests {
		assert.Equal(t, want, DetectPageType(u), u)
	}
}
