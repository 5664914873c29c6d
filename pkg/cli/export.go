package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"
	"github.com/redhist/redhist/pkg/usecase/export"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		config cfg
		output string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Destination JSON file",
			Required:    true,
			Destination: &output,
		},
	}
	flags = append(flags, globalFlags(&config)...)

	return &cli.Command{
		Name:      "export",
		Usage:     "Export a stored fetch to a JSON file",
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
				return err
			}
			items, err := repo.GetItems(ctx, fetch.ID)
			if err != nil {
				return err
			}

			if err := export.Items(output, items); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "exported %d items to %s\n", len(items), output)
			return nil
		},
	}
}
