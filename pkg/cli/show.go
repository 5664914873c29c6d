package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		config cfg
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print items as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&config)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show the items of a stored fetch",
		ArgsUsage: "<fetch-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("fetch-id argument is required")
			}

			ctx = config.withLogger(ctx)

			repo, err := config.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			fetch, err := repo.GetFetch(ctx, model.FetchID(id))
			if err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					return err
				}
				// Not a fetch; the ID may name an analysis.
				analysis, aerr := repo.GetAnalysis(ctx, model.AnalysisID(id))
				if aerr != nil {
					return err
				}
				return showAnalysis(c, analysis, asJSON)
			}
			items, err := repo.GetItems(ctx, fetch.ID)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return goerr.Wrap(err, "failed to encode items")
				}
				fmt.Fprintln(c.Root().Writer, string(data))
				return nil
			}

			printFetchSummary(c.Root().Writer, &model.FetchResult{Fetch: fetch, Items: items})
			printItems(c.Root().Writer, items)
			return nil
		},
	}
}

func showAnalysis(c *cli.Command, analysis *model.AnalysisResult, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return goerr.Wrap(err, "failed to encode analysis")
		}
		fmt.Fprintln(c.Root().Writer, string(data))
		return nil
	}

	fmt.Fprintf(c.Root().Writer, "u/%s (%s, %d source items)\n",
		analysis.Username, analysis.CreatedAt.Format("2006-01-02 15:04"),
		len(analysis.SourceItemIDs))
	fmt.Fprintf(c.Root().Writer, "Q: %s\n\n%s\n", analysis.Question, analysis.Answer)
	return nil
}
