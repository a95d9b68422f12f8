package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/Converse/internal/app/orch"
)

var flagAddr string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live counters of a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		st, err := fetchStats(ctx, flagAddr)
		if err != nil {
			return err
		}
		renderStats(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&flagAddr, "addr", "a", "http://localhost:8080", "Server base URL")
}

func fetchStats(ctx context.Context, addr string) (orch.Stats, error) {
	url := strings.TrimRight(addr, "/") + "/api/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return orch.Stats{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return orch.Stats{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return orch.Stats{}, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	var st orch.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return orch.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return st, nil
}

func renderStats(w io.Writer, st orch.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Policy", st.Policy},
		{"Connections", st.Connections},
		{"Online", st.Online},
		{"Waiting", st.Waiting},
		{"Sessions", st.Sessions},
	})
	t.Render()
}
