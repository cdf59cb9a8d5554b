package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmc/nlmsend/internal/dispatch"
	"github.com/tmc/nlmsend/internal/nativemsg"
)

func (a *app) nativeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "native [origin]",
		Short: "Serve browser native messaging on stdin and stdout",
		Long: `native reads command messages from a browser extension over the native
messaging protocol and answers each with the command's result. Register
nlmsend as a native messaging host whose manifest runs "nlmsend native".`,
		GroupID: "hosts",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				a.logger.Debug("native host started", "origin", args[0])
			}
			return serveNative(cmd.Context(), s.dispatcher, os.Stdin, os.Stdout)
		},
	}
}

// serveNative answers messages until the browser closes the stream.
func serveNative(ctx context.Context, d *dispatch.Dispatcher, in io.Reader, out io.Writer) error {
	r := nativemsg.NewReader(in)
	w := nativemsg.NewWriter(out)
	for {
		var req dispatch.Request
		err := r.Read(&req)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.Write(d.Dispatch(ctx, req)); err != nil {
			return err
		}
	}
}
