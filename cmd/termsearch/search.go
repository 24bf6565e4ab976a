package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/server"
)

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search the pre-built index for one exact term",
		Args:  exactArgs(1, "a search term"),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := args[0]
			snap, err := segment.NewStore(a.cfg.Index).Load(cmd.Context())
			if err != nil {
				return err
			}
			resp := server.NewResponse(term, executor.New(snap).Search(term))
			enc := json.NewEncoder(a.stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}
