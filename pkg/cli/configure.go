package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/adapter"
	"github.com/redhist/redhist/pkg/config"
	"github.com/urfave/cli/v3"
)

func configureCommand() *cli.Command {
	var (
		cfgv     cfg
		validate bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "validate",
			Usage:       "Verify the credentials against the Reddit API after saving",
			Destination: &validate,
		},
	}
	flags = append(flags, globalFlags(&cfgv)...)
	flags = append(flags, credentialFlags(&cfgv)...)
	flags = append(flags, llmFlags(&cfgv)...)

	return &cli.Command{
		Name:  "configure",
		Usage: "Store API credentials",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfgv.withLogger(ctx)

			path, err := cfgv.credentialPath()
			if err != nil {
				return err
			}

			cred, err := cfgv.credential()
			if err != nil {
				return err
			}

			// Without credential flags, fall back to interactive prompts.
			interactive := !c.IsSet("client-id") && !c.IsSet("client-secret") &&
				!c.IsSet("user-agent") && !c.IsSet("gemini-api-key")
			if interactive {
				if err := promptCredential(cred); err != nil {
					return err
				}
			}

			if cred.ClientID == "" || cred.ClientSecret == "" {
				return goerr.New("client ID and client secret are required")
			}

			if err := cred.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "credentials saved to %s\n", path)

			if validate {
				client := adapter.NewReddit(cred.ClientID, cred.ClientSecret, cred.UserAgent)
				sp := newSpinner("validating credentials...")
				sp.Start()
				err := client.Validate(ctx)
				sp.Stop()
				if err != nil {
					return goerr.Wrap(err, "reddit credential validation failed")
				}
				fmt.Fprintln(c.Root().Writer, "reddit credentials OK")

				if cred.GeminiAPIKey != "" {
					gemini, err := adapter.NewGemini(ctx, cred.GeminiAPIKey)
					if err != nil {
						return err
					}
					sp := newSpinner("validating gemini API key...")
					sp.Start()
					err = gemini.Validate(ctx)
					sp.Stop()
					if err != nil {
						return goerr.Wrap(err, "gemini credential validation failed")
					}
					fmt.Fprintln(c.Root().Writer, "gemini API key OK")
				}
			}
			return nil
		},
	}
}

// promptCredential fills the credential interactively. An empty answer keeps
// the current value.
func promptCredential(cred *config.Credential) error {
	rl, err := readline.New("")
	if err != nil {
		return goerr.Wrap(err, "failed to initialize prompt")
	}
	defer rl.Close()

	fields := []struct {
		label string
		value *string
	}{
		{"Reddit client ID", &cred.ClientID},
		{"Reddit client secret", &cred.ClientSecret},
		{"User agent", &cred.UserAgent},
		{"Gemini API key (optional)", &cred.GeminiAPIKey},
	}

	for _, field := range fields {
		hint := ""
		if *field.value != "" {
			hint = " [keep current]"
		}
		rl.SetPrompt(fmt.Sprintf("%s%s: ", field.label, hint))

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return goerr.New("configuration aborted")
			}
			return goerr.Wrap(err, "failed to read input")
		}
		if answer := strings.TrimSpace(line); answer != "" {
			*field.value = answer
		}
	}
	return nil
}
