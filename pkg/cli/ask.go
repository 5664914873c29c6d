package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/usecase/analyze"
	"github.com/redhist/redhist/pkg/usecase/export"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		config cfg
		days   int64
		output string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "days",
			Aliases:     []string{"d"},
			Usage:       "Limit the analyzed history to the last N days (0 for all)",
			Destination: &days,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Export the analysis to a JSON file",
			Destination: &output,
		},
	}
	flags = append(flags, globalFlags(&config)...)
	flags = append(flags, credentialFlags(&config)...)
	flags = append(flags, llmFlags(&config)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question about a user's Reddit history",
		ArgsUsage: "<username> [question...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			username := c.Args().First()
			if username == "" {
				return goerr.New("username argument is required")
			}
			question := strings.Join(c.Args().Tail(), " ")

			ctx = config.withLogger(ctx)

			client, err := config.newReddit()
			if err != nil {
				return err
			}
			gemini, err := config.newGemini(ctx)
			if err != nil {
				return err
			}
			repo, err := config.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			uc := analyze.New(client, gemini, repo)

			if question != "" {
				return askOnce(ctx, c, uc, username, question, int(days), output)
			}
			return askLoop(ctx, c, uc, username, int(days), output)
		},
	}
}

func askOnce(ctx context.Context, c *cli.Command, uc *analyze.UseCase, username, question string, days int, output string) error {
	sp := newSpinner(fmt.Sprintf("analyzing u/%s...", username))
	sp.Start()
	result, err := uc.Analyze(ctx, analyze.Input{
		Username: username,
		Question: question,
		Days:     days,
	})
	sp.Stop()
	if err != nil {
		return err
	}

	fmt.Fprintln(c.Root().Writer, result.Answer)

	if output != "" {
		if err := export.Analysis(output, result); err != nil {
			return err
		}
		fmt.Fprintf(c.Root().Writer, "exported to %s\n", output)
	}
	return nil
}

// askLoop runs an interactive question prompt until EOF or an exit command.
func askLoop(ctx context.Context, c *cli.Command, uc *analyze.UseCase, username string, days int, output string) error {
	rl, err := readline.New(fmt.Sprintf("u/%s> ", username))
	if err != nil {
		return goerr.Wrap(err, "failed to initialize prompt")
	}
	defer rl.Close()

	fmt.Fprintf(c.Root().Writer, "Ask about u/%s's history. Type 'exit' to quit.\n", username)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return goerr.Wrap(err, "failed to read input")
		}

		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}

		if err := askOnce(ctx, c, uc, username, question, days, output); err != nil {
			fmt.Fprintf(c.Root().ErrWriter, "error: %v\n", err)
		}
	}
}
