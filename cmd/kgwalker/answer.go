package main

import (
	"encoding/json"
	"fmt"

	"github.com/siherrmann/kgwalker"
	"github.com/siherrmann/kgwalker/core/retrieval"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	"github.com/spf13/cobra"
)

func newStrategy(name string, engine *retrieval.Engine) (retrieval.Strategy, error) {
	switch name {
	case "policy":
		return retrieval.NewPolicyStrategy(engine), nil
	case "multi_hop":
		return retrieval.NewMultiHopStrategy(engine), nil
	case "vector":
		return retrieval.NewVectorOnlyStrategy(engine), nil
	case "hybrid":
		return retrieval.NewHybridStrategy(engine), nil
	default:
		return nil, helper.NewError("answer", fmt.Errorf("unknown strategy %q (use policy, multi_hop, vector or hybrid)", name))
	}
}

// openAnswerWalker builds the walker of the answer command and the store of its vector signal.
// Without a database there is no store and the vector signal is skipped.
func (o *options) openAnswerWalker(useDatabase, seedNames bool) (*kgwalker.Walker, retrieval.NearestRows, error) {
	if !useDatabase {
		w, err := o.newWalker(seedNames)
		return w, nil, err
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, nil, err
	}
	w, err := kgwalker.NewWalkerFromDatabase(o.config, dbConfig)
	if err != nil {
		return nil, nil, err
	}
	// The query vector and the stored rows must come from the same tables
	if err := w.LoadEmbeddings(); err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return w, w.Embeddings, nil
}

func newAnswerCmd(opts *options) *cobra.Command {
	var source, query, strategyName string
	var seedNames, useDatabase bool
	queryConfig := model.DefaultQueryConfig()

	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Rank candidate answers of (source, query, ?)",
		Long: `Rank candidate answers of (source, query, ?) from policy walks, graph distance and embedding similarity.
The vector signal needs stored embeddings: with --database the triples and embeddings are read from
the database configured through the KGWALKER_DB_* environment variables. Without it the vector
strategy fails and hybrid ranking ignores --vector-weight.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, nearest, err := opts.openAnswerWalker(useDatabase, seedNames)
			if err != nil {
				return err
			}
			defer w.Close()

			s, q, err := lookup(w.Graph, source, query)
			if err != nil {
				return err
			}

			engine := retrieval.NewEngine(
				w.Graph,
				w,
				nearest,
				w.Policy.Transformer.EntityEmbedding,
				w.Policy.Transformer.RelationEmbedding,
				kgwalker.EntityEmbeddingName,
			)
			strategy, err := newStrategy(strategyName, engine)
			if err != nil {
				return err
			}

			results, err := strategy.Retrieve(cmd.Context(), s, q, &queryConfig)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(results)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source entity name")
	cmd.Flags().StringVar(&query, "query", "", "query relation name")
	cmd.Flags().StringVar(&strategyName, "strategy", "hybrid", "ranking strategy: policy, multi_hop, vector or hybrid")
	cmd.Flags().BoolVar(&useDatabase, "database", false, "read triples and stored embeddings from the database")
	cmd.Flags().BoolVar(&seedNames, "seed-names", false, "seed the embeddings from entity and relation names with the default text embedder")
	cmd.Flags().IntVar(&queryConfig.TopK, "top-k", queryConfig.TopK, "number of answers")
	cmd.Flags().IntVar(&queryConfig.Steps, "steps", queryConfig.Steps, "hops per policy walk")
	cmd.Flags().IntVar(&queryConfig.NumRollouts, "rollouts", queryConfig.NumRollouts, "sampled policy walks per query")
	cmd.Flags().IntVar(&queryConfig.MaxHops, "max-hops", queryConfig.MaxHops, "maximum graph distance")
	cmd.Flags().Float64Var(&queryConfig.PolicyWeight, "policy-weight", queryConfig.PolicyWeight, "weight of the policy score")
	cmd.Flags().Float64Var(&queryConfig.GraphWeight, "graph-weight", queryConfig.GraphWeight, "weight of the graph distance score")
	cmd.Flags().Float64Var(&queryConfig.VectorWeight, "vector-weight", queryConfig.VectorWeight, "weight of the embedding similarity, used with --database")
	cmd.Flags().Float64Var(&queryConfig.SimilarityThreshold, "similarity-threshold", queryConfig.SimilarityThreshold, "minimum embedding similarity of vector answers")
	cmd.MarkFlagsMutuallyExclusive("database", "seed-names")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
