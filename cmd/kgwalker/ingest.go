package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/siherrmann/kgwalker"
	"github.com/siherrmann/kgwalker/core/pipeline"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/spf13/cobra"
)

func newIngestCmd(opts *options) *cobra.Command {
	var textPath, modelPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract auxiliary triples from a text file into the database",
		Long: `Extract triples from every non empty line of a text file with a REBEL model and store
them as auxiliary triples. The database is configured through the KGWALKER_DB_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := os.Open(textPath) // #nosec G304 -- path is chosen by the operator
			if err != nil {
				return helper.NewError("open text file", err)
			}
			defer file.Close()

			extract, err := pipeline.NewTripleExtractor(modelPath)
			if err != nil {
				return helper.NewError("create triple extractor", err)
			}

			dbConfig, err := helper.NewDatabaseConfiguration()
			if err != nil {
				return err
			}
			w, err := kgwalker.NewWalkerFromDatabase(opts.config, dbConfig)
			if err != nil {
				return err
			}
			defer w.Close()

			total := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if scanner.Text() == "" {
					continue
				}
				n, err := w.IngestText(scanner.Text(), extract)
				if err != nil {
					return err
				}
				total += n
			}
			if err := scanner.Err(); err != nil {
				return helper.NewError("read text file", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ingested %d triples\n", total)
			return err
		},
	}

	cmd.Flags().StringVar(&textPath, "text", "", "path to the text file")
	cmd.Flags().StringVar(&modelPath, "model", "", "path to the REBEL onnx model directory")
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}
