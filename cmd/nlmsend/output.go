package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tmc/nlmsend/internal/auth"
	"github.com/tmc/nlmsend/internal/dispatch"
)

// render writes v in the selected output format. In text mode it calls
// text instead. A response carrying an error message becomes the command's
// error after it is written.
func (a *app) render(cmd *cobra.Command, res dispatch.Response, text func(dispatch.Response)) error {
	msg := res.ErrorMessage()
	switch a.output {
	case "json", "yaml":
		if err := encode(cmd.OutOrStdout(), a.output, res); err != nil {
			return err
		}
	default:
		if msg == "" && text != nil {
			text(res)
		}
	}
	if msg == "" {
		return nil
	}
	if msg == dispatch.LoginMessage {
		return fmt.Errorf("%s (run \"nlmsend login\")", auth.ErrAuthRequired)
	}
	return errors.New(msg)
}

// encode writes v as indented JSON or YAML. YAML goes through JSON first so
// both formats use the same field names.
func encode(w io.Writer, format string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

func printTable(rows pterm.TableData) {
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
