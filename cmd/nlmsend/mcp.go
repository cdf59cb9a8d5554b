package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/tmc/nlmsend/internal/dispatch"
)

type (
	// NoInput is the input of tools without parameters.
	NoInput struct{}

	// CreateNotebookInput contains parameters for creating a notebook.
	CreateNotebookInput struct {
		Title string `json:"title" jsonschema:"Notebook title"`
		Emoji string `json:"emoji,omitempty" jsonschema:"Emoji shown with the notebook (default: 📔)"`
	}

	// NotebookInput names a notebook.
	NotebookInput struct {
		NotebookID string `json:"notebookId" jsonschema:"Notebook ID"`
	}

	// AddSourcesInput contains parameters for adding URL sources.
	AddSourcesInput struct {
		NotebookID string   `json:"notebookId" jsonschema:"Notebook ID"`
		URLs       []string `json:"urls" jsonschema:"URLs to add; YouTube links become video sources"`
	}

	// AddTextInput contains parameters for adding a text source.
	AddTextInput struct {
		NotebookID string `json:"notebookId" jsonschema:"Notebook ID"`
		Text       string `json:"text" jsonschema:"Text content of the source"`
		Title      string `json:"title,omitempty" jsonschema:"Source title (default: Imported content)"`
	}

	// DeleteSourcesInput contains parameters for removing sources.
	DeleteSourcesInput struct {
		NotebookID string   `json:"notebookId" jsonschema:"Notebook ID"`
		SourceIDs  []string `json:"sourceIds" jsonschema:"IDs of the sources to remove"`
		Confirm    string   `json:"confirm" jsonschema:"Must be set to 'yes' to confirm deletion"`
	}

	// SaveInput contains parameters for saving URLs to a notebook.
	SaveInput struct {
		Title      string   `json:"title,omitempty" jsonschema:"Title for a new notebook"`
		URLs       []string `json:"urls" jsonschema:"URLs to save"`
		NotebookID string   `json:"notebookId,omitempty" jsonschema:"Existing notebook; a new one is created when empty"`
		CreateNew  bool     `json:"createNew,omitempty" jsonschema:"Create a new notebook even when notebookId is set"`
	}
)

func (a *app) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "mcp",
		Short:   "Serve the commands as Model Context Protocol tools on stdio",
		GroupID: "hosts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			server := mcp.NewServer(&mcp.Implementation{
				Name:    "nlmsend",
				Version: version,
			}, nil)
			registerTools(server, s.dispatcher)
			if err := server.Run(cmd.Context(), &mcp.StdioTransport{}); err != nil {
				return fmt.Errorf("error running server: %w", err)
			}
			return nil
		},
	}
}

// dispatchTool adapts a command to a tool handler. Command failures are
// tool errors.
func dispatchTool[In any](d *dispatch.Dispatcher, build func(In) dispatch.Request) mcp.ToolHandlerFor[In, dispatch.Response] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, dispatch.Response, error) {
		res := d.Dispatch(ctx, build(in))
		if msg := res.ErrorMessage(); msg != "" {
			return &mcp.CallToolResult{IsError: true}, res, errors.New(msg)
		}
		return nil, res, nil
	}
}

func registerTools(server *mcp.Server, d *dispatch.Dispatcher) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_accounts",
		Description: "List the Google accounts signed in to the browser profile. The index selects an account.",
	}, dispatchTool(d, func(NoInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdListAccounts}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_notebooks",
		Description: "List the notebooks owned by the selected account. Shared notebooks are not included.",
	}, dispatchTool(d, func(NoInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdListNotebooks}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_notebook",
		Description: "Create an empty notebook and return its ID.",
	}, dispatchTool(d, func(in CreateNotebookInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdCreateNotebook, Title: in.Title, Emoji: in.Emoji}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_notebook",
		Description: "Get a notebook's title and its sources.",
	}, dispatchTool(d, func(in NotebookInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdGetNotebook, NotebookID: in.NotebookID}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_sources",
		Description: "Add URLs to a notebook and wait until they are ingested. Returns the notebook URL.",
	}, dispatchTool(d, func(in AddSourcesInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdAddSources, NotebookID: in.NotebookID, URLs: in.URLs}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_text_source",
		Description: "Add text as a notebook source.",
	}, dispatchTool(d, func(in AddTextInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdAddTextSource, NotebookID: in.NotebookID, Text: in.Text, Title: in.Title}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_sources",
		Description: "Remove sources from a notebook. Requires confirm='yes' for safety. Reports how many were removed.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in DeleteSourcesInput) (*mcp.CallToolResult, dispatch.Response, error) {
		if in.Confirm != "yes" {
			return &mcp.CallToolResult{IsError: true}, dispatch.Response{"success": false},
				fmt.Errorf("deletion not confirmed: set confirm='yes' to proceed")
		}
		return dispatchTool(d, func(in DeleteSourcesInput) dispatch.Request {
			return dispatch.Request{Cmd: dispatch.CmdDeleteSources, NotebookID: in.NotebookID, SourceIDs: in.SourceIDs}
		})(ctx, req, in)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_to_notebook",
		Description: "Save URLs to a notebook, creating one first when no notebookId is given or createNew is set. Waits for ingestion.",
	}, dispatchTool(d, func(in SaveInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdSaveToNotebook, Title: in.Title, URLs: in.URLs, NotebookID: in.NotebookID, CreateNew: in.CreateNew}
	}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tabs",
		Description: "List pages open in a Chrome started with remote debugging.",
	}, dispatchTool(d, func(NoInput) dispatch.Request {
		return dispatch.Request{Cmd: dispatch.CmdGetAllTabs}
	}))
}
