// Package dispatch routes command messages to the NotebookLM services.
//
// A Request names a command in its Cmd field. Dispatch never returns an
// error: failures come back inside the Response as an "error" entry, so the
// same value can be written to a browser, a terminal or an MCP client.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/tmc/nlmsend/internal/accounts"
	"github.com/tmc/nlmsend/internal/api"
	"github.com/tmc/nlmsend/internal/auth"
	"github.com/tmc/nlmsend/internal/settings"
	"github.com/tmc/nlmsend/internal/tabs"
)

// Command names.
const (
	CmdPing              = "ping"
	CmdListAccounts      = "list-accounts"
	CmdListNotebooks     = "list-notebooks"
	CmdListNotebooksOld  = "list-notebooklm"
	CmdCreateNotebook    = "create-notebook"
	CmdAddSource         = "add-source"
	CmdAddSources        = "add-sources"
	CmdAddTextSource     = "add-text-source"
	CmdGetNotebook       = "get-notebook"
	CmdGetSources        = "get-sources"
	CmdDeleteSource      = "delete-source"
	CmdDeleteSources     = "delete-sources"
	CmdSaveToNotebook    = "save-to-notebook"
	CmdSaveToNotebookOld = "save-to-notebooklm"
	CmdGetCurrentTab     = "get-current-tab"
	CmdGetAllTabs        = "get-all-tabs"
)

// Commands lists every command Dispatch understands.
var Commands = []string{
	CmdPing, CmdListAccounts, CmdListNotebooks, CmdListNotebooksOld,
	CmdCreateNotebook, CmdAddSource, CmdAddSources, CmdAddTextSource,
	CmdGetNotebook, CmdGetSources, CmdDeleteSource, CmdDeleteSources,
	CmdSaveToNotebook, CmdSaveToNotebookOld, CmdGetCurrentTab, CmdGetAllTabs,
}

// tokenless commands never touch NotebookLM.
var tokenless = []string{CmdPing, CmdListAccounts, CmdGetCurrentTab, CmdGetAllTabs}

// Message returned when tokens cannot be acquired.
const (
	LoginMessage       = "Please login to NotebookLM first"
	LegacyLoginMessage = "Please authorize NotebookLM to continue"
	legacyNotebookName = "YouTube Videos"
)

// Request is one command message. Unused fields are ignored.
type Request struct {
	Cmd        string   `json:"cmd"`
	Title      string   `json:"title,omitempty"`
	Emoji      string   `json:"emoji,omitempty"`
	NotebookID string   `json:"notebookId,omitempty"`
	URL        string   `json:"url,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	Text       string   `json:"text,omitempty"`
	SourceID   string   `json:"sourceId,omitempty"`
	SourceIDs  []string `json:"sourceIds,omitempty"`
	CreateNew  bool     `json:"createNew,omitempty"`

	// Fields of the save-to-notebooklm message.
	LegacyNotebookID string `json:"notebookID,omitempty"`
	CurrentURL       string `json:"currentURL,omitempty"`
}

// Response is a command result keyed the way browser callers expect.
type Response map[string]interface{}

// ErrorMessage returns the "error" or legacy "err" entry, or "".
func (r Response) ErrorMessage() string {
	if s, ok := r["error"].(string); ok && s != "" {
		return s
	}
	s, _ := r["err"].(string)
	return s
}

func failure(err error) Response {
	return Response{"error": err.Error()}
}

// Notebooks is the notebook service. *api.Client implements it.
type Notebooks interface {
	ListNotebooks(ctx context.Context) ([]api.Notebook, error)
	CreateNotebook(ctx context.Context, title, emoji string) (*api.Notebook, error)
	AddSource(ctx context.Context, notebookID, url string) error
	AddSources(ctx context.Context, notebookID string, urls []string) error
	AddTextSource(ctx context.Context, notebookID, text, title string) error
	WaitUntilReady(ctx context.Context, notebookID string, maxAttempts int) (bool, error)
	GetNotebook(ctx context.Context, notebookID string) (*api.NotebookDetail, error)
	DeleteSource(ctx context.Context, notebookID, sourceID string) error
	DeleteSources(ctx context.Context, notebookID string, sourceIDs []string) (api.DeleteResult, error)
	NotebookURL(notebookID string, authUser int) string
}

// AccountLister lists signed-in accounts. *accounts.Directory implements it.
type AccountLister interface {
	List(ctx context.Context) []accounts.Account
}

// TabSource reports open browser tabs. *tabs.Client implements it.
type TabSource interface {
	All(ctx context.Context) ([]tabs.Tab, error)
	Current(ctx context.Context) (tabs.Tab, error)
}

// SettingsStore loads and saves preferences. *settings.Store implements it.
type SettingsStore interface {
	Load() (settings.Settings, error)
	Update(fn func(*settings.Settings)) (settings.Settings, error)
}

// TokenSource acquires session tokens. *auth.TokenManager implements it.
type TokenSource interface {
	Current(ctx context.Context, accountIndex int) (*auth.Tokens, error)
}

// AccountScoper directs RPCs at an account. *rpc.Client implements it.
type AccountScoper interface {
	SetAccount(n int)
}

// Dispatcher executes commands.
type Dispatcher struct {
	notebooks Notebooks
	tokens    TokenSource

	accounts AccountLister
	tabs     TabSource
	settings SettingsStore
	scope    AccountScoper
	open     func(url string) error
	logger   *slog.Logger

	account      *int
	waitAttempts int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAccounts sets the account directory.
func WithAccounts(a AccountLister) Option { return func(d *Dispatcher) { d.accounts = a } }

// WithTabs sets the browser tab source.
func WithTabs(t TabSource) Option { return func(d *Dispatcher) { d.tabs = t } }

// WithSettings sets the preference store.
func WithSettings(s SettingsStore) Option { return func(d *Dispatcher) { d.settings = s } }

// WithAccountScope sets what receives the selected account before each
// command.
func WithAccountScope(s AccountScoper) Option { return func(d *Dispatcher) { d.scope = s } }

// WithOpener sets how notebook URLs are opened when auto-open is on.
func WithOpener(fn func(url string) error) Option { return func(d *Dispatcher) { d.open = fn } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithAccount pins the account index, ignoring the saved selection.
func WithAccount(n int) Option { return func(d *Dispatcher) { d.account = &n } }

// WithWaitAttempts bounds the readiness polling after sources are added.
func WithWaitAttempts(n int) Option { return func(d *Dispatcher) { d.waitAttempts = n } }

// New returns a Dispatcher backed by notebooks and tokens.
func New(notebooks Notebooks, tokens TokenSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notebooks:    notebooks,
		tokens:       tokens,
		logger:       slog.New(slog.DiscardHandler),
		waitAttempts: api.DefaultWaitAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one command.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	prefs := d.loadSettings()
	account := prefs.SelectedAccount
	if d.account != nil {
		account = *d.account
	}
	d.logger.DebugContext(ctx, "dispatch", "cmd", req.Cmd, "authuser", account)

	if !slices.Contains(tokenless, req.Cmd) {
		if d.scope != nil {
			d.scope.SetAccount(account)
		}
		if _, err := d.tokens.Current(ctx, account); err != nil {
			d.logger.DebugContext(ctx, "token acquisition failed", "cmd", req.Cmd, "error", err)
			return Response{"error": LoginMessage, "err": LegacyLoginMessage}
		}
	}

	switch req.Cmd {
	case CmdPing:
		return Response{"ok": true}
	case CmdListAccounts:
		return d.listAccounts(ctx)
	case CmdListNotebooks:
		nbs, err := d.notebooks.ListNotebooks(ctx)
		if err != nil {
			return Response{"error": err.Error(), "notebooks": nbs}
		}
		return Response{"notebooks": nbs}
	case CmdListNotebooksOld:
		nbs, err := d.notebooks.ListNotebooks(ctx)
		if err != nil {
			return Response{"err": err.Error(), "list": nbs}
		}
		return Response{"list": nbs}
	case CmdCreateNotebook:
		emoji := req.Emoji
		if emoji == "" {
			emoji = api.DefaultEmoji
		}
		nb, err := d.notebooks.CreateNotebook(ctx, req.Title, emoji)
		if err != nil {
			return failure(err)
		}
		return Response{"notebook": nb}
	case CmdAddSource:
		if err := d.notebooks.AddSource(ctx, req.NotebookID, req.URL); err != nil {
			return failure(err)
		}
		return Response{"success": true}
	case CmdAddSources:
		return d.addSources(ctx, req, account)
	case CmdAddTextSource:
		if err := d.notebooks.AddTextSource(ctx, req.NotebookID, req.Text, req.Title); err != nil {
			return failure(err)
		}
		return Response{"success": true}
	case CmdGetNotebook:
		nb, err := d.notebooks.GetNotebook(ctx, req.NotebookID)
		if err != nil {
			return failure(err)
		}
		return Response{"notebook": nb}
	case CmdGetSources:
		nb, err := d.notebooks.GetNotebook(ctx, req.NotebookID)
		if err != nil {
			return Response{"error": err.Error(), "sources": []api.Source{}}
		}
		return Response{"sources": nb.Sources}
	case CmdDeleteSource:
		if err := d.notebooks.DeleteSource(ctx, req.NotebookID, req.SourceID); err != nil {
			return failure(err)
		}
		return Response{"success": true}
	case CmdDeleteSources:
		return d.deleteSources(ctx, req)
	case CmdSaveToNotebook:
		return d.saveToNotebook(ctx, req, account, prefs)
	case CmdSaveToNotebookOld:
		return d.saveLegacy(ctx, req, account)
	case CmdGetCurrentTab:
		return d.currentTab(ctx)
	case CmdGetAllTabs:
		return d.allTabs(ctx)
	default:
		d.logger.WarnContext(ctx, "unknown command", "cmd", req.Cmd)
		return Response{"error": "Unknown command: " + req.Cmd}
	}
}

func (d *Dispatcher) loadSettings() settings.Settings {
	if d.settings == nil {
		return settings.Defaults()
	}
	s, err := d.settings.Load()
	if err != nil {
		d.logger.Warn("using default settings", "error", err)
		return settings.Defaults()
	}
	return s
}

func (d *Dispatcher) listAccounts(ctx context.Context) Response {
	list := []accounts.Account{}
	if d.accounts != nil {
		list = d.accounts.List(ctx)
	}
	return Response{"accounts": list, "list": list}
}

func (d *Dispatcher) addSources(ctx context.Context, req Request, account int) Response {
	if err := d.notebooks.AddSources(ctx, req.NotebookID, req.URLs); err != nil {
		return failure(err)
	}
	if _, err := d.notebooks.WaitUntilReady(ctx, req.NotebookID, d.waitAttempts); err != nil {
		return failure(err)
	}
	return Response{
		"success":     true,
		"notebookUrl": d.notebooks.NotebookURL(req.NotebookID, account),
	}
}

func (d *Dispatcher) deleteSources(ctx context.Context, req Request) Response {
	res, err := d.notebooks.DeleteSources(ctx, req.NotebookID, req.SourceIDs)
	if err != nil {
		var derr *api.DeleteError
		if errors.As(err, &derr) {
			return Response{
				"success":      false,
				"successCount": derr.Deleted,
				"failCount":    len(req.SourceIDs) - derr.Deleted,
				"error":        err.Error(),
			}
		}
		return failure(err)
	}
	return Response{
		"success":      true,
		"successCount": res.DeletedCount,
		"failCount":    len(req.SourceIDs) - res.DeletedCount,
	}
}

// notebookEmoji picks the icon for a notebook created from urls.
func notebookEmoji(urls []string) string {
	if slices.ContainsFunc(urls, func(u string) bool { return strings.Contains(u, "youtube.com") }) {
		return api.VideoEmoji
	}
	return api.DefaultEmoji
}

func (d *Dispatcher) saveToNotebook(ctx context.Context, req Request, account int, prefs settings.Settings) Response {
	target := req.NotebookID
	if req.CreateNew || target == "" {
		title := req.Title
		if title == "" {
			title = api.DefaultTextTitle
		}
		nb, err := d.notebooks.CreateNotebook(ctx, title, notebookEmoji(req.URLs))
		if err != nil {
			return failure(err)
		}
		target = nb.ID
	}
	if err := d.notebooks.AddSources(ctx, target, req.URLs); err != nil {
		return failure(err)
	}
	if _, err := d.notebooks.WaitUntilReady(ctx, target, d.waitAttempts); err != nil {
		return failure(err)
	}

	notebookURL := d.notebooks.NotebookURL(target, account)
	if d.settings != nil {
		if _, err := d.settings.Update(func(s *settings.Settings) { s.LastNotebook = target }); err != nil {
			d.logger.WarnContext(ctx, "could not record last notebook", "error", err)
		}
	}
	if prefs.AutoOpenNotebook && d.open != nil {
		if err := d.open(notebookURL); err != nil {
			d.logger.WarnContext(ctx, "could not open notebook", "url", notebookURL, "error", err)
		}
	}
	return Response{
		"success":     true,
		"notebookId":  target,
		"notebookUrl": notebookURL,
	}
}

func (d *Dispatcher) saveLegacy(ctx context.Context, req Request, account int) Response {
	target := req.LegacyNotebookID
	if target == "" {
		target = req.NotebookID
	}
	if target == "" {
		title := req.Title
		if title == "" {
			title = legacyNotebookName
		}
		nb, err := d.notebooks.CreateNotebook(ctx, title, api.VideoEmoji)
		if err != nil {
			return Response{"err": err.Error()}
		}
		target = nb.ID
	}
	if err := d.notebooks.AddSources(ctx, target, req.URLs); err != nil {
		return Response{"err": err.Error()}
	}
	if _, err := d.notebooks.WaitUntilReady(ctx, target, d.waitAttempts); err != nil {
		return Response{"err": err.Error()}
	}
	return Response{"url": d.notebooks.NotebookURL(target, account)}
}

func (d *Dispatcher) currentTab(ctx context.Context) Response {
	if d.tabs == nil {
		return Response{"error": "no browser connected"}
	}
	tab, err := d.tabs.Current(ctx)
	if err != nil {
		return failure(err)
	}
	return Response{"tab": tab}
}

func (d *Dispatcher) allTabs(ctx context.Context) Response {
	if d.tabs == nil {
		return Response{"error": "no browser connected", "tabs": []tabs.Tab{}}
	}
	list, err := d.tabs.All(ctx)
	if err != nil {
		return Response{"error": err.Error(), "tabs": []tabs.Tab{}}
	}
	return Response{"tabs": list}
}
