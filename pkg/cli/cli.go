package cli

import (
	"context"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/redhist/redhist/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "redhist",
		Usage: "Download, filter, and analyze Reddit history",
		Commands: []*cli.Command{
			configureCommand(),
			userCommand(),
			subredditCommand(),
			askCommand(),
			listCommand(),
			showCommand(),
			exportCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// newSpinner builds a progress spinner writing to stderr so command output
// on stdout stays clean.
func newSpinner(message string) *spinner.Spinner {
	return spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(os.Stderr),
		spinner.WithSuffix(" "+message),
	)
}
