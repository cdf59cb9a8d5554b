// Command nlmsend sends web pages, videos and text to NotebookLM notebooks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/fang"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/tmc/nlmsend/internal/accounts"
	"github.com/tmc/nlmsend/internal/api"
	"github.com/tmc/nlmsend/internal/auth"
	"github.com/tmc/nlmsend/internal/batchexecute"
	"github.com/tmc/nlmsend/internal/dispatch"
	"github.com/tmc/nlmsend/internal/rpc"
	"github.com/tmc/nlmsend/internal/settings"
	"github.com/tmc/nlmsend/internal/tabs"
)

// Environment variables read at startup.
const (
	envHome      = "NLMSEND_HOME"
	envDebug     = "NLMSEND_DEBUG"
	envChromeURL = "NLMSEND_CHROME_URL"
	envNoKeyring = "NLMSEND_NO_KEYRING"
)

// app holds the global flags and the services built from them.
type app struct {
	home    string
	debug   bool
	account int
	output  string

	logger *slog.Logger
}

func main() {
	a := &app{}
	root := a.rootCommand()
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithoutCompletions(),
		fang.WithoutManpage(),
	); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nlmsend",
		Short: "Send pages, videos and text to NotebookLM",
		Long: `nlmsend adds web pages, YouTube videos and pasted text to NotebookLM
notebooks, lists notebooks and their sources, and removes sources in bulk.

Sign in once with "nlmsend login". The browser cookies are kept in the
system keyring, or in $NLMSEND_HOME/env when no keyring is available.`,
		Example: `  nlmsend login
  nlmsend ls
  nlmsend save --title "Reading" https://go.dev/blog/
  nlmsend import --notebook <id> links.txt`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	envDebugOn, _ := strconv.ParseBool(os.Getenv(envDebug))
	root.PersistentFlags().BoolVar(&a.debug, "debug", envDebugOn, "enable debug logging (or set "+envDebug+")")
	root.PersistentFlags().IntVarP(&a.account, "account", "a", -1, "account index to use instead of the saved selection")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format: text, json or yaml")

	root.AddGroup(
		&cobra.Group{ID: "notebooks", Title: "Notebook Commands:"},
		&cobra.Group{ID: "sources", Title: "Source Commands:"},
		&cobra.Group{ID: "setup", Title: "Account and Setup Commands:"},
		&cobra.Group{ID: "hosts", Title: "Integration Commands:"},
	)
	root.AddCommand(
		a.lsCommand(),
		a.createCommand(),
		a.showCommand(),
		a.saveCommand(),
		a.importCommand(),
		a.addCommand(),
		a.addTextCommand(),
		a.sourcesCommand(),
		a.rmSourceCommand(),
		a.tabsCommand(),
		a.accountsCommand(),
		a.useCommand(),
		a.configCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.nativeCommand(),
		a.mcpCommand(),
	)
	return root
}

func (a *app) setup() error {
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	a.home = os.Getenv(envHome)
	if a.home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locate home directory: %w", err)
		}
		a.home = filepath.Join(dir, ".nlmsend")
	}
	a.logger.Debug("using config directory", "dir", a.home)
	return nil
}

func (a *app) settingsStore() *settings.Store {
	return settings.NewStore(a.home)
}

func (a *app) credentials() *auth.CredentialStore {
	noKeyring, _ := strconv.ParseBool(os.Getenv(envNoKeyring))
	return auth.NewCredentialStore(a.home, !noKeyring)
}

// cookies returns the cookie header from NLM_COOKIES or the credential
// store. Missing credentials are not an error here: the first RPC reports
// the login message.
func (a *app) cookies() (string, error) {
	if c := os.Getenv(auth.CookiesEnv); c != "" {
		return c, nil
	}
	c, err := a.credentials().Load()
	if errors.Is(err, auth.ErrNoCredentials) {
		a.logger.Debug("no stored credentials")
		return "", nil
	}
	return c, err
}

// session is the wired service graph for one invocation.
type session struct {
	tokens     *auth.TokenManager
	rpc        *rpc.Client
	notebooks  *api.Client
	settings   *settings.Store
	dispatcher *dispatch.Dispatcher
}

func (a *app) session() (*session, error) {
	cookies, err := a.cookies()
	if err != nil {
		return nil, err
	}
	tm := auth.NewTokenManager(cookies, auth.WithLogger(a.logger))
	rc := rpc.New(tm, cookies, batchexecute.WithLogger(a.logger))
	client := api.New(rc, api.WithLogger(a.logger))
	store := a.settingsStore()

	opts := []dispatch.Option{
		dispatch.WithAccounts(accounts.NewDirectory(cookies, accounts.WithLogger(a.logger))),
		dispatch.WithTabs(tabs.New(os.Getenv(envChromeURL), tabs.WithLogger(a.logger))),
		dispatch.WithSettings(store),
		dispatch.WithAccountScope(rc),
		dispatch.WithOpener(browser.OpenURL),
		dispatch.WithLogger(a.logger),
	}
	if a.account >= 0 {
		opts = append(opts, dispatch.WithAccount(a.account))
	}
	return &session{
		tokens:     tm,
		rpc:        rc,
		notebooks:  client,
		settings:   store,
		dispatcher: dispatch.New(client, tm, opts...),
	}, nil
}

// selectedAccount is the --account flag or the saved selection.
func (a *app) selectedAccount(store *settings.Store) int {
	if a.account >= 0 {
		return a.account
	}
	s, err := store.Load()
	if err != nil {
		a.logger.Warn("using default settings", "error", err)
		return 0
	}
	return s.SelectedAccount
}

// run dispatches req and renders the response.
func (a *app) run(cmd *cobra.Command, req dispatch.Request, text func(dispatch.Response)) error {
	s, err := a.session()
	if err != nil {
		return err
	}
	res := s.dispatcher.Dispatch(cmd.Context(), req)
	return a.render(cmd, res, text)
}
