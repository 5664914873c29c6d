package cli

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"
	"github.com/urfave/cli/v3"
)

const dateLayout = "2006-01-02"

// filterFlags returns the filter criteria flags shared by the fetch commands.
func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "min-score",
			Usage: "Keep items with at least this score",
		},
		&cli.IntFlag{
			Name:  "max-score",
			Usage: "Keep items with at most this score",
		},
		&cli.StringSliceFlag{
			Name:    "keyword",
			Aliases: []string{"k"},
			Usage:   "Keep items containing the keyword (repeatable, any match)",
		},
		&cli.StringSliceFlag{
			Name:  "subreddit",
			Usage: "Keep items from the subreddit (repeatable, any match)",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "Keep items created on or after this date (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "until",
			Usage: "Keep items created before this date (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "type",
			Usage: "Keep only a single item type: post, comment, or all",
			Value: "all",
		},
	}
}

// criteriaFromFlags assembles a FilterCriteria from parsed command flags.
func criteriaFromFlags(c *cli.Command) (model.FilterCriteria, error) {
	var criteria model.FilterCriteria

	if c.IsSet("min-score") {
		v := int(c.Int("min-score"))
		criteria.MinScore = &v
	}
	if c.IsSet("max-score") {
		v := int(c.Int("max-score"))
		criteria.MaxScore = &v
	}
	criteria.Keywords = c.StringSlice("keyword")
	criteria.Subreddits = c.StringSlice("subreddit")

	if s := c.String("since"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return criteria, goerr.Wrap(err, "invalid since date", goerr.V("since", s))
		}
		criteria.Since = t
	}
	if s := c.String("until"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return criteria, goerr.Wrap(err, "invalid until date", goerr.V("until", s))
		}
		criteria.Until = t
	}

	if s := c.String("type"); s != "" && s != "all" {
		itemType := model.ItemType(s)
		if err := itemType.Validate(); err != nil {
			return criteria, err
		}
		criteria.Type = itemType
	}

	return criteria, nil
}
