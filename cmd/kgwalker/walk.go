package main

import (
	"encoding/json"
	"fmt"

	"github.com/siherrmann/kgwalker"
	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/pipeline"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	"github.com/spf13/cobra"
)

// namedStep is a walk step with resolved names
type namedStep struct {
	Relation    string  `json:"relation"`
	Entity      string  `json:"entity"`
	Probability float64 `json:"probability"`
	Entropy     float64 `json:"entropy"`
}

// namedWalk is a walk result with resolved names
type namedWalk struct {
	RunID  string      `json:"run_id"`
	Source string      `json:"source"`
	Query  string      `json:"query"`
	Answer string      `json:"answer"`
	Steps  []namedStep `json:"steps"`
}

func nameWalk(kg *graph.KnowledgeGraph, result *model.WalkResult) namedWalk {
	walk := namedWalk{
		RunID:  result.RunID.String(),
		Source: kg.Entities.Name(result.Source),
		Query:  kg.Relations.Name(result.Query),
		Answer: kg.Entities.Name(result.Answer()),
	}
	for _, step := range result.Steps {
		walk.Steps = append(walk.Steps, namedStep{
			Relation:    kg.Relations.Name(step.Relation),
			Entity:      kg.Entities.Name(step.Entity),
			Probability: step.Probability,
			Entropy:     step.Entropy,
		})
	}
	return walk
}

// newWalker builds the graph and a walker, optionally seeding the embeddings from entity names
func (o *options) newWalker(seedNames bool) (*kgwalker.Walker, error) {
	kg, err := o.loadGraph()
	if err != nil {
		return nil, err
	}

	w, err := kgwalker.NewWalker(o.config, kg)
	if err != nil {
		return nil, err
	}

	if seedNames {
		embed, err := pipeline.DefaultEmbedder()
		if err != nil {
			return nil, helper.NewError("create embedder", err)
		}
		if _, err := w.SeedEmbeddings(embed); err != nil {
			return nil, err
		}
	}

	return w, nil
}

func newWalkCmd(opts *options) *cobra.Command {
	var source, query, mode string
	var steps int
	var seedNames bool

	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Walk the graph from a source entity under a query relation",
		Long: `Walk the graph from a source entity under a query relation and print the path as JSON.
In train mode one walk is sampled per policy rollout, otherwise the most likely action is taken.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := model.Mode(mode)
			switch m {
			case model.ModeTrain, model.ModeEval, model.ModeTest:
			default:
				return helper.NewError("walk", fmt.Errorf("unknown mode %q (use train, eval or test)", mode))
			}

			w, err := opts.newWalker(seedNames)
			if err != nil {
				return err
			}
			defer w.Close()

			s, q, err := lookup(w.Graph, source, query)
			if err != nil {
				return err
			}

			n := 1
			if m.IsTraining() {
				n = opts.config.Policy.NumRollouts
			}
			sources := make([]int, n)
			queries := make([]int, n)
			for i := range sources {
				sources[i] = s
				queries[i] = q
			}

			results, err := w.Rollout(cmd.Context(), sources, queries, nil, steps, m)
			if err != nil {
				return err
			}

			walks := make([]namedWalk, len(results))
			for i, result := range results {
				walks[i] = nameWalk(w.Graph, result)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(walks)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source entity name")
	cmd.Flags().StringVar(&query, "query", "", "query relation name")
	cmd.Flags().IntVar(&steps, "steps", 3, "number of hops to walk")
	cmd.Flags().StringVar(&mode, "mode", string(model.ModeEval), "walk mode: train, eval or test")
	cmd.Flags().BoolVar(&seedNames, "seed-names", false, "seed the embeddings from entity and relation names with the default text embedder")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
