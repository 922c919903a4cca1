package main

import (
	"fmt"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	"github.com/spf13/cobra"
)

// options are shared by every subcommand and filled before it runs
type options struct {
	configPath string
	config     *model.Config

	train string
	dev   string
	test  string
	aux   string
}

// NewRootCmd creates the root kgwalker command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "kgwalker",
		Short:         "kgwalker walks knowledge graphs with a graph transformer policy",
		Long:          "kgwalker answers (entity, relation, ?) queries by walking a knowledge graph with a graph search policy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config, err := model.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.config = config
			return nil
		},
	}

	// Global flags
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.train, "train", "", "path to the training triples (TSV)")
	root.PersistentFlags().StringVar(&opts.dev, "dev", "", "path to the dev triples (TSV)")
	root.PersistentFlags().StringVar(&opts.test, "test", "", "path to the test triples (TSV)")
	root.PersistentFlags().StringVar(&opts.aux, "aux", "", "path to auxiliary triples (TSV)")

	// Register subcommands
	root.AddCommand(
		newWalkCmd(opts),
		newAnswerCmd(opts),
		newReachCmd(opts),
		newIngestCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)

	return root
}

// loadGraph builds the knowledge graph from the triple files given on the command line
func (o *options) loadGraph() (*graph.KnowledgeGraph, error) {
	if o.train == "" {
		return nil, helper.NewError("load graph", fmt.Errorf("--train is required"))
	}

	files := []struct {
		path  string
		split model.Split
	}{
		{o.train, model.SplitTrain},
		{o.dev, model.SplitDev},
		{o.test, model.SplitTest},
		{o.aux, model.SplitAux},
	}

	var triples []*model.Triple
	for _, f := range files {
		if f.path == "" {
			continue
		}
		loaded, err := graph.LoadTriplesFile(f.path, f.split)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("load %s triples", f.split), err)
		}
		triples = append(triples, loaded...)
	}

	return graph.NewKnowledgeGraph(triples, o.config.Graph)
}

// lookup resolves an entity and a relation name of kg
func lookup(kg *graph.KnowledgeGraph, entity, relation string) (int, int, error) {
	e, ok := kg.Entities.ID(entity)
	if !ok {
		return 0, 0, helper.NewError("lookup", fmt.Errorf("unknown entity %q", entity))
	}
	r, ok := kg.Relations.ID(relation)
	if !ok {
		return 0, 0, helper.NewError("lookup", fmt.Errorf("unknown relation %q", relation))
	}
	return e, r, nil
}
