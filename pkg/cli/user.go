package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/usecase/export"
	"github.com/redhist/redhist/pkg/usecase/fetch"
	"github.com/urfave/cli/v3"
)

func userCommand() *cli.Command {
	var (
		config cfg
		limit  int64
		output string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of items to fetch per listing (0 for everything)",
			Sources:     cli.EnvVars("REDHIST_LIMIT"),
			Destination: &limit,
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
		Name:      "user",
		Usage:     "Download a user's post and comment history",
		ArgsUsage: "<username>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			username := c.Args().First()
			if username == "" {
				return goerr.New("username argument is required")
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

			sp := newSpinner(fmt.Sprintf("fetching u/%s...", username))
			sp.Start()
			result, fetchErr := uc.User(ctx, fetch.UserInput{
				Username: username,
				Limit:    int(limit),
				Criteria: criteria,
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
