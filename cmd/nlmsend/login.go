package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tmc/nlmsend/internal/auth"
)

func (a *app) loginCommand() *cobra.Command {
	var (
		chromePath string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to NotebookLM in a browser window and store the cookies",
		Long: `login opens Chrome with a profile kept under $NLMSEND_HOME/chrome-profile.
Sign in to NotebookLM there; the window closes once the session cookies
are available and they are saved to the system keyring, or to
$NLMSEND_HOME/env when no keyring is available.`,
		GroupID: "setup",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []auth.LoginOption{
				auth.WithLoginTimeout(timeout),
				auth.WithLoginLogger(a.logger),
			}
			if chromePath != "" {
				opts = append(opts, auth.WithExecPath(chromePath))
			}
			login := auth.NewBrowserLogin(filepath.Join(a.home, "chrome-profile"), opts...)

			spinner, _ := pterm.DefaultSpinner.Start("Waiting for NotebookLM sign-in")
			cookies, err := login.Run(cmd.Context())
			if err != nil {
				spinner.Fail(err.Error())
				return fmt.Errorf("login: %w", err)
			}
			spinner.Success("Signed in")

			where, err := a.credentials().Save(cookies)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Saved credentials to %s", where)
			return nil
		},
	}
	cmd.Flags().StringVar(&chromePath, "chrome", "", "path to the Chrome executable")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for sign-in")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Remove stored credentials",
		GroupID: "setup",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.credentials().Clear(); err != nil {
				return err
			}
			pterm.Success.Println("Removed stored credentials")
			return nil
		},
	}
}
