package main

import (
	"fmt"
	"strings"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/spf13/cobra"
)

func newReachCmd(opts *options) *cobra.Command {
	var source, target string
	var hops int

	cmd := &cobra.Command{
		Use:   "reach",
		Short: "Check whether a target entity is reachable from a source in the training graph and print a shortest path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kg, err := opts.loadGraph()
			if err != nil {
				return err
			}

			s, ok := kg.Entities.ID(source)
			if !ok {
				return helper.NewError("reach", fmt.Errorf("unknown entity %q", source))
			}
			t, ok := kg.Entities.ID(target)
			if !ok {
				return helper.NewError("reach", fmt.Errorf("unknown entity %q", target))
			}

			result, err := graph.ReachableWithin(cmd.Context(), kg.Graph(graph.KindTrain), s, t, hops)
			if err != nil {
				return helper.NewError("reach", err)
			}

			if result == nil {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is not reachable from %s within %d hops\n", target, source, hops)
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s is reachable from %s in %d hops\n", target, source, result.Distance); err != nil {
				return err
			}

			var path strings.Builder
			path.WriteString(source)
			for _, edge := range result.Path {
				fmt.Fprintf(&path, " --%s--> %s", kg.Relations.Name(edge.Relation), kg.Entities.Name(edge.Entity))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "path: %s\n", path.String())
			return err
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source entity name")
	cmd.Flags().StringVar(&target, "target", "", "target entity name")
	cmd.Flags().IntVar(&hops, "hops", 3, "maximum number of hops")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}
