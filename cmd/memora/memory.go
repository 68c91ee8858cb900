package memora

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/memora-ai/memora"
	"github.com/memora-ai/memora/pkg/config"
	"github.com/memora-ai/memora/pkg/types"
)

var (
	flagAgentID  string
	flagFactType string
	flagEventAt  string
	flagTopK     int
	flagBudget   int
	flagReranker string
	flagTrace    bool
)

var putCmd = &cobra.Command{
	Use:   "put [text]",
	Short: "Store one fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(mem *memora.Memory) error {
			var eventAt time.Time
			if flagEventAt != "" {
				t, err := time.Parse(time.RFC3339, flagEventAt)
				if err != nil {
					return fmt.Errorf("parse --event-at: %w", err)
				}
				eventAt = t
			}
			unit, err := mem.Put(cmd.Context(), memora.PutRequest{
				AgentID:  flagAgentID,
				Text:     args[0],
				FactType: types.FactType(flagFactType),
				EventAt:  eventAt,
			})
			if err != nil {
				return err
			}
			return printJSON(unit)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(mem *memora.Memory) error {
			budget := flagBudget
			res, err := mem.Search(cmd.Context(), memora.SearchRequest{
				AgentID:  flagAgentID,
				Query:    args[0],
				Budget:   &budget,
				TopK:     flagTopK,
				Reranker: flagReranker,
				Trace:    flagTrace,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var thinkCmd = &cobra.Command{
	Use:   "think [question]",
	Short: "Answer a question from memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(mem *memora.Memory) error {
			res, err := mem.Think(cmd.Context(), memora.ThinkRequest{
				AgentID: flagAgentID,
				Query:   args[0],
				TopK:    flagTopK,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{putCmd, searchCmd, thinkCmd} {
		c.Flags().StringVar(&flagAgentID, "agent", "default", "Agent id owning the memories")
		rootCmd.AddCommand(c)
	}
	putCmd.Flags().StringVar(&flagFactType, "fact-type", "world", "Fact type (world, agent, opinion)")
	putCmd.Flags().StringVar(&flagEventAt, "event-at", "", "Event time, RFC3339 (default now)")

	searchCmd.Flags().IntVar(&flagTopK, "top-k", 10, "Result count")
	searchCmd.Flags().IntVar(&flagBudget, "budget", 50, "Activation budget (0 disables graph strategies)")
	searchCmd.Flags().StringVar(&flagReranker, "reranker", "heuristic", "Reranker (none, heuristic, cross_encoder)")
	searchCmd.Flags().BoolVar(&flagTrace, "trace", false, "Include the diagnostic trace")

	thinkCmd.Flags().IntVar(&flagTopK, "top-k", 10, "Memories to reason over")
}

func withMemory(cmd *cobra.Command, fn func(*memora.Memory) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	mem, err := buildMemory(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer mem.Close()
	return fn(mem)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
