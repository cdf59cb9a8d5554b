package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmc/nlmsend/internal/accounts"
	"github.com/tmc/nlmsend/internal/api"
	"github.com/tmc/nlmsend/internal/auth"
	"github.com/tmc/nlmsend/internal/settings"
	"github.com/tmc/nlmsend/internal/tabs"
)

type fakeNotebooks struct {
	created    []string
	emojis     []string
	added      map[string][]string
	waited     []string
	deleteErr  error
	deleteRes  api.DeleteResult
	addErr     error
	listErr    error
	notebooks  []api.Notebook
	createdID  string
	detail     *api.NotebookDetail
	textTitles []string
}

func newFakeNotebooks() *fakeNotebooks {
	return &fakeNotebooks{added: map[string][]string{}, createdID: "new-nb"}
}

func (f *fakeNotebooks) ListNotebooks(ctx context.Context) ([]api.Notebook, error) {
	if f.listErr != nil {
		return []api.Notebook{}, f.listErr
	}
	return f.notebooks, nil
}

func (f *fakeNotebooks) CreateNotebook(ctx context.Context, title, emoji string) (*api.Notebook, error) {
	f.created = append(f.created, title)
	f.emojis = append(f.emojis, emoji)
	return &api.Notebook{ID: f.createdID, Name: title, Emoji: emoji}, nil
}

func (f *fakeNotebooks) AddSource(ctx context.Context, notebookID, url string) error {
	return f.AddSources(ctx, notebookID, []string{url})
}

func (f *fakeNotebooks) AddSources(ctx context.Context, notebookID string, urls []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added[notebookID] = append(f.added[notebookID], urls...)
	return nil
}

func (f *fakeNotebooks) AddTextSource(ctx context.Context, notebookID, text, title string) error {
	f.textTitles = append(f.textTitles, title)
	return nil
}

func (f *fakeNotebooks) WaitUntilReady(ctx context.Context, notebookID string, maxAttempts int) (bool, error) {
	f.waited = append(f.waited, notebookID)
	return true, nil
}

func (f *fakeNotebooks) GetNotebook(ctx context.Context, notebookID string) (*api.NotebookDetail, error) {
	if f.detail == nil {
		return nil, errors.New("not found")
	}
	return f.detail, nil
}

func (f *fakeNotebooks) DeleteSource(ctx context.Context, notebookID, sourceID string) error {
	_, err := f.DeleteSources(ctx, notebookID, []string{sourceID})
	return err
}

func (f *fakeNotebooks) DeleteSources(ctx context.Context, notebookID string, sourceIDs []string) (api.DeleteResult, error) {
	return f.deleteRes, f.deleteErr
}

func (f *fakeNotebooks) NotebookURL(notebookID string, authUser int) string {
	return api.New(nil).NotebookURL(notebookID, authUser)
}

type fakeTokens struct {
	err      error
	accounts []int
}

func (f *fakeTokens) Current(ctx context.Context, accountIndex int) (*auth.Tokens, error) {
	f.accounts = append(f.accounts, accountIndex)
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Tokens{SecurityToken: "bl", SessionToken: "at", AccountIndex: accountIndex}, nil
}

type fakeSettings struct {
	s settings.Settings
}

func (f *fakeSettings) Load() (settings.Settings, error) { return f.s, nil }

func (f *fakeSettings) Update(fn func(*settings.Settings)) (settings.Settings, error) {
	fn(&f.s)
	return f.s, nil
}

type scope struct{ n int }

func (s *scope) SetAccount(n int) { s.n = n }

type fakeAccounts []accounts.Account

func (f fakeAccounts) List(ctx context.Context) []accounts.Account { return f }

type fakeTabs struct {
	list []tabs.Tab
	err  error
}

func (f fakeTabs) All(ctx context.Context) ([]tabs.Tab, error) { return f.list, f.err }

func (f fakeTabs) Current(ctx context.Context) (tabs.Tab, error) {
	if f.err != nil {
		return tabs.Tab{}, f.err
	}
	return f.list[0], nil
}

func TestTokenlessCommands(t *testing.T) {
	tokens := &fakeTokens{err: auth.ErrAuthRequired}
	d := New(newFakeNotebooks(), tokens,
		WithAccounts(fakeAccounts{{Email: "a@example.com"}}),
		WithTabs(fakeTabs{list: []tabs.Tab{{ID: "t1", URL: "https://go.dev/", Active: true}}}),
	)
	ctx := context.Background()

	assert.Equal(t, Response{"ok": true}, d.Dispatch(ctx, Request{Cmd: CmdPing}))

	res := d.Dispatch(ctx, Request{Cmd: CmdListAccounts})
	assert.Len(t, res["accounts"], 1)
	assert.Equal(t, res["accounts"], res["list"])

	res = d.Dispatch(ctx, Request{Cmd: CmdGetCurrentTab})
	assert.Equal(t, "t1", res["tab"].(tabs.Tab).ID)

	res = d.Dispatch(ctx, Request{Cmd: CmdGetAllTabs})
	assert.Len(t, res["tabs"], 1)

	assert.Empty(t, tokens.accounts, "no token acquisition")
}

func TestLoginRequired(t *testing.T) {
	d := New(newFakeNotebooks(), &fakeTokens{err: auth.ErrAuthRequired})
	for _, cmd := range []string{CmdListNotebooks, CmdCreateNotebook, CmdDeleteSources, CmdSaveToNotebook, "bogus"} {
		res := d.Dispatch(context.Background(), Request{Cmd: cmd})
		assert.Equal(t, LoginMessage, res.ErrorMessage(), cmd)
	}
}

func TestUnknownCommand(t *testing.T) {
	d := New(newFakeNotebooks(), &fakeTokens{})
	res := d.Dispatch(context.Background(), Request{Cmd: "frobnicate"})
	assert.Equal(t, Response{"error": "Unknown command: frobnicate"}, res)
}

func TestSelectedAccount(t *testing.T) {
	tokens := &fakeTokens{}
	sc := &scope{}
	nbs := newFakeNotebooks()
	d := New(nbs, tokens, WithSettings(&fakeSettings{s: settings.Settings{SelectedAccount: 2}}), WithAccountScope(sc))

	res := d.Dispatch(context.Background(), Request{Cmd: CmdAddSources, NotebookID: "nb", URLs: []string{"https://go.dev/"}})
	require.Empty(t, res.ErrorMessage())
	assert.Equal(t, []int{2}, tokens.accounts)
	assert.Equal(t, 2, sc.n)
	assert.Equal(t, "https://notebooklm.google.com/notebook/nb?authuser=2", res["notebookUrl"])
	assert.Equal(t, []string{"nb"}, nbs.waited)

	pinned := New(nbs, tokens, WithSettings(&fakeSettings{s: settings.Settings{SelectedAccount: 2}}), WithAccount(0))
	pinned.Dispatch(context.Background(), Request{Cmd: CmdListNotebooks})
	assert.Equal(t, []int{2, 0}, tokens.accounts)
}

func TestListNotebooks(t *testing.T) {
	nbs := newFakeNotebooks()
	nbs.notebooks = []api.Notebook{{ID: "a", Name: "A"}}
	d := New(nbs, &fakeTokens{})
	ctx := context.Background()

	assert.Equal(t, Response{"notebooks": nbs.notebooks}, d.Dispatch(ctx, Request{Cmd: CmdListNotebooks}))
	assert.Equal(t, Response{"list": nbs.notebooks}, d.Dispatch(ctx, Request{Cmd: CmdListNotebooksOld}))

	nbs.listErr = errors.New("RPC call failed: 500")
	res := d.Dispatch(ctx, Request{Cmd: CmdListNotebooks})
	assert.Equal(t, "RPC call failed: 500", res["error"])
	assert.Equal(t, []api.Notebook{}, res["notebooks"])

	res = d.Dispatch(ctx, Request{Cmd: CmdListNotebooksOld})
	assert.Equal(t, "RPC call failed: 500", res["err"])
	assert.NotContains(t, res, "error")
}

func TestCreateNotebookDefaultEmoji(t *testing.T) {
	nbs := newFakeNotebooks()
	d := New(nbs, &fakeTokens{})
	res := d.Dispatch(context.Background(), Request{Cmd: CmdCreateNotebook, Title: "Reading"})
	nb := res["notebook"].(*api.Notebook)
	assert.Equal(t, "Reading", nb.Name)
	assert.Equal(t, api.DefaultEmoji, nb.Emoji)
}

func TestSaveToNotebook(t *testing.T) {
	tests := []struct {
		name        string
		req         Request
		wantCreated []string
		wantEmoji   string
		wantTarget  string
	}{
		{
			name:        "new notebook for videos",
			req:         Request{URLs: []string{"https://go.dev/", "https://www.youtube.com/watch?v=x"}},
			wantCreated: []string{"Imported content"},
			wantEmoji:   api.VideoEmoji,
			wantTarget:  "new-nb",
		},
		{
			name:        "create new despite id",
			req:         Request{Title: "Mine", NotebookID: "old", CreateNew: true, URLs: []string{"https://go.dev/"}},
			wantCreated: []string{"Mine"},
			wantEmoji:   api.DefaultEmoji,
			wantTarget:  "new-nb",
		},
		{
			name:       "existing notebook",
			req:        Request{NotebookID: "old", URLs: []string{"https://go.dev/"}},
			wantTarget: "old",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nbs := newFakeNotebooks()
			store := &fakeSettings{s: settings.Settings{AutoOpenNotebook: true}}
			var opened []string
			d := New(nbs, &fakeTokens{}, WithSettings(store), WithOpener(func(u string) error {
				opened = append(opened, u)
				return nil
			}))

			tt.req.Cmd = CmdSaveToNotebook
			res := d.Dispatch(context.Background(), tt.req)
			require.Empty(t, res.ErrorMessage())

			assert.Equal(t, tt.wantCreated, nbs.created)
			if tt.wantEmoji != "" {
				assert.Equal(t, []string{tt.wantEmoji}, nbs.emojis)
			}
			assert.Equal(t, tt.req.URLs, nbs.added[tt.wantTarget])
			assert.Equal(t, tt.wantTarget, res["notebookId"])
			wantURL := "https://notebooklm.google.com/notebook/" + tt.wantTarget
			assert.Equal(t, wantURL, res["notebookUrl"])
			assert.Equal(t, tt.wantTarget, store.s.LastNotebook)
			assert.Equal(t, []string{wantURL}, opened)
		})
	}
}

func TestSaveToNotebookAddFailure(t *testing.T) {
	nbs := newFakeNotebooks()
	nbs.addErr = errors.New("RPC call failed: 400")
	store := &fakeSettings{}
	d := New(nbs, &fakeTokens{}, WithSettings(store))

	res := d.Dispatch(context.Background(), Request{Cmd: CmdSaveToNotebook, NotebookID: "nb", URLs: []string{"https://go.dev/"}})
	assert.Equal(t, Response{"error": "RPC call failed: 400"}, res)
	assert.Empty(t, store.s.LastNotebook)
}

func TestSaveLegacy(t *testing.T) {
	nbs := newFakeNotebooks()
	d := New(nbs, &fakeTokens{}, WithSettings(&fakeSettings{s: settings.Settings{SelectedAccount: 1}}))

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"cmd":"save-to-notebooklm","urls":["https://youtu.be/x"],"currentURL":"https://youtube.com/playlist?list=1"}`), &req))
	res := d.Dispatch(context.Background(), req)
	assert.Equal(t, Response{"url": "https://notebooklm.google.com/notebook/new-nb?authuser=1"}, res)
	assert.Equal(t, []string{"YouTube Videos"}, nbs.created)
	assert.Equal(t, []string{api.VideoEmoji}, nbs.emojis)

	require.NoError(t, json.Unmarshal([]byte(`{"cmd":"save-to-notebooklm","urls":["https://youtu.be/y"],"notebookID":"abc"}`), &req))
	res = d.Dispatch(context.Background(), req)
	assert.Equal(t, "https://notebooklm.google.com/notebook/abc?authuser=1", res["url"])
	assert.Len(t, nbs.created, 1)

	nbs.addErr = errors.New("boom")
	res = d.Dispatch(context.Background(), req)
	assert.Equal(t, Response{"err": "boom"}, res)
}

func TestDeleteSources(t *testing.T) {
	ids := make([]string, 45)
	for i := range ids {
		ids[i] = "s"
	}

	nbs := newFakeNotebooks()
	nbs.deleteRes = api.DeleteResult{Success: true, DeletedCount: 45}
	d := New(nbs, &fakeTokens{})
	res := d.Dispatch(context.Background(), Request{Cmd: CmdDeleteSources, NotebookID: "nb", SourceIDs: ids})
	assert.Equal(t, Response{"success": true, "successCount": 45, "failCount": 0}, res)

	nbs.deleteRes = api.DeleteResult{DeletedCount: 20}
	nbs.deleteErr = &api.DeleteError{Deleted: 20, Remaining: 25, Err: errors.New("RPC call failed: 500")}
	res = d.Dispatch(context.Background(), Request{Cmd: CmdDeleteSources, NotebookID: "nb", SourceIDs: ids})
	assert.Equal(t, false, res["success"])
	assert.Equal(t, 20, res["successCount"])
	assert.Equal(t, 25, res["failCount"])
	assert.Contains(t, res.ErrorMessage(), "RPC call failed: 500")
}

func TestGetSources(t *testing.T) {
	nbs := newFakeNotebooks()
	d := New(nbs, &fakeTokens{})

	res := d.Dispatch(context.Background(), Request{Cmd: CmdGetSources, NotebookID: "nb"})
	assert.Equal(t, []api.Source{}, res["sources"])
	assert.NotEmpty(t, res.ErrorMessage())

	nbs.detail = &api.NotebookDetail{ID: "nb", Sources: []api.Source{{ID: "s1"}}}
	res = d.Dispatch(context.Background(), Request{Cmd: CmdGetSources, NotebookID: "nb"})
	assert.Equal(t, nbs.detail.Sources, res["sources"])
}

func TestAddTextSource(t *testing.T) {
	nbs := newFakeNotebooks()
	d := New(nbs, &fakeTokens{})
	res := d.Dispatch(context.Background(), Request{Cmd: CmdAddTextSource, NotebookID: "nb", Text: "hello", Title: "Greeting"})
	assert.Equal(t, Response{"success": true}, res)
	assert.Equal(t, []string{"Greeting"}, nbs.textTitles)
}

func TestTabsUnavailable(t *testing.T) {
	d := New(newFakeNotebooks(), &fakeTokens{}, WithTabs(fakeTabs{err: tabs.ErrNoTabs}))
	res := d.Dispatch(context.Background(), Request{Cmd: CmdGetAllTabs})
	assert.Equal(t, []tabs.Tab{}, res["tabs"])
	assert.Equal(t, tabs.ErrNoTabs.Error(), res.ErrorMessage())
}
