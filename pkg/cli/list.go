package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		config   cfg
		offset   int64
		limit    int64
		analyses bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "analyses",
			Usage:       "List stored analyses instead of fetches",
			Destination: &analyses,
		},
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Offset for pagination",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of fetches to list",
			Value:       50,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&config)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List stored fetches and analyses",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = config.withLogger(ctx)

			repo, err := config.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			if analyses {
				results, err := repo.ListAnalyses(ctx, int(offset), int(limit))
				if err != nil {
					return err
				}
				for _, a := range results {
					fmt.Fprintf(c.Root().Writer, "%s\tu/%s\t%s\t%s\n",
						a.ID, a.Username, excerpt(a.Question),
						a.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			}

			fetches, err := repo.ListFetches(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			for _, f := range fetches {
				target := fmt.Sprintf("%s/%s", f.Kind, f.Target)
				status := "complete"
				if f.Incomplete {
					status = "incomplete"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%d items\t%s\t%s\n",
					f.ID, target, f.ItemCount, status,
					f.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
