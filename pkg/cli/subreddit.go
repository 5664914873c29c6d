package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/usecase/export"
	"github.com/redhist/redhist/pkg/usecase/fetch"
	"github.com/urfave/cli/v3"
)

func subredditCommand() *cli.Command {
	var (
		config   cfg
		sort     string
		limit    int64
		comments bool
		output   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "sort",
			Aliases:     []string{"s"},
			Usage:       "Listing sort: new, hot, top, or all",
			Value:       "new",
			Destination: &sort,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of matched posts (0 for everything)",
			Sources:     cli.EnvVars("REDHIST_LIMIT"),
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "comments",
			Usage:       "Also fetch top-level comments of matched posts",
			Destination: &comments,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Export the result to a JSON file",
			Destination: &output,
		},
	}
	flags = append(flags, filterFlags()...)
	flags = append(flags, globalFlags(&config)...)
	flags = append(flags, credentialFlags(&config)...)

	return &cli.Command{
		Name:      "subreddit",
		Usage:     "Download posts from a subreddit",
		ArgsUsage: "<subreddit>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			name := c.Args().First()
			if name == "" {
				return goerr.New("subreddit argument is required")
			}

			criteria, err := criteriaFromFlags(c)
			if err != nil {
				return err
			}

			ctx = config.withLogger(ctx)

			client, err := config.newReddit()
			if err != nil {
				return err
			}
			repo, err := config.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			uc := fetch.New(client, repo)

			sp := newSpinner(fmt.Sprintf("fetching r/%s...", name))
			sp.Start()
			result, fetchErr := uc.Subreddit(ctx, fetch.SubredditInput{
				Subreddit:       name,
				Sort:            sort,
				Limit:           int(limit),
				Criteria:        criteria,
				IncludeComments: comments,
			})
			sp.Stop()

			if result == nil {
				return fetchErr
			}
			if fetchErr != nil {
				fmt.Fprintf(c.Root().ErrWriter, "warning: fetch incomplete: %v\n", fetchErr)
			}

			printFetchSummary(c.Root().Writer, result)
			printItems(c.Root().Writer, result.Items)

			if output != "" {
				if err := export.Items(output, result.Items); err != nil {
					return err
				}
				fmt.Fprintf(c.Root().Writer, "exported to %s\n", output)
			}
			return nil
		},
	}
}
