package adapter

import (
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/caselog/pkg/interfaces"
	"github.com/m-mizutani/caselog/pkg/model"
)

type textRenderer struct{}

// NewTextRenderer returns a plain-text Renderer. It exists so the CLI is
// usable end to end; richer document formats plug in behind
// interfaces.Renderer without touching the core.
func NewTextRenderer() interfaces.Renderer {
	return &textRenderer{}
}

const timeLayout = "2006-01-02 15:04"

func (x *textRenderer) Render(w io.Writer, timeline *model.Timeline) error {
	fmt.Fprintf(w, "Activity timeline (%d items, generated %s)\n\n",
		len(timeline.Items), timeline.GeneratedAt.Format(timeLayout))

	for _, item := range timeline.Items {
		author := item.Author
		if author == "" {
			author = "(unknown)"
		}
		ts := item.CreatedAt.Format(timeLayout)
		if item.TimeSynthesized {
			ts += " (estimated)"
		}
		fmt.Fprintf(w, "[%s] %s - %s: %s\n", item.Kind, ts, author, item.Title)
		if body := strings.TrimSpace(item.Body); body != "" {
			for _, line := range strings.Split(body, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		for _, c := range item.Comments {
			cAuthor := c.Author
			if cAuthor == "" {
				cAuthor = "(unknown)"
			}
			fmt.Fprintf(w, "    > %s - %s: %s\n", c.CreatedAt.Format(timeLayout), cAuthor, c.Body)
		}
		fmt.Fprintln(w)
	}

	for _, c := range timeline.Report.Collections {
		if c.Status == model.CollectionFailed {
			fmt.Fprintf(w, "warning: collection %q could not be fetched: %s\n", c.Collection, c.Error)
		}
	}
	if n := timeline.Report.DegradedItems; n > 0 {
		fmt.Fprintf(w, "warning: %d item(s) exported without comments\n", n)
	}

	return nil
}
