package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/screening"
)

type scoredEntity struct {
	entity sanctions.Entity
	score  float64
}

// scoreCmd scores a counterparty name against the built-in sample
// watchlist without starting the pipeline
func scoreCmd() *cobra.Command {
	var (
		threshold float64
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "score [name]",
		Short: "Score a counterparty name against the sample watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold <= 0 || threshold > 100 {
				return fmt.Errorf("threshold must be in (0, 100]")
			}
			name := strings.Join(args, " ")

			results := scoreAgainst(name, sanctions.SampleWatchlist(time.Now()))
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tNAME\tSCORE\tFLAG")
			for _, r := range results {
				flag := ""
				if r.score >= threshold {
					flag = "MATCH"
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", r.entity.ID, r.entity.Name, r.score, flag)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", screening.DefaultConfig().Threshold, "Score that counts as a match")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum rows, 0 for all")

	return cmd
}

// scoreAgainst ranks entities by similarity, best first. Equal scores keep
// watchlist order.
func scoreAgainst(name string, entities []sanctions.Entity) []scoredEntity {
	results := make([]scoredEntity, 0, len(entities))
	for _, e := range entities {
		results = append(results, scoredEntity{entity: e, score: screening.Similarity(name, e.Name)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	return results
}
