/*
Package api provides the NotebookLM notebook service: listing, creating and
inspecting notebooks, and adding or removing their sources.

Basic usage:

	tokens := auth.NewTokenManager(cookies)
	client := api.New(rpc.New(tokens, cookies))

	// List notebooks
	notebooks, err := client.ListNotebooks(ctx)

	// Create one and fill it
	nb, err := client.CreateNotebook(ctx, "Reading list", "📔")
	err = client.AddSources(ctx, nb.ID, []string{"https://go.dev/blog/"})
	ready, err := client.WaitUntilReady(ctx, nb.ID, api.DefaultWaitAttempts)

Responses are decoded by the pure functions in parsers.go. They return empty
defaults instead of errors when the host payload does not have the expected
shape.
*/
package api
