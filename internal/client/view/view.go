// Package view renders the feed in a terminal.
package view

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/webitel/post-feed-service/internal/client/feed"
	"github.com/webitel/post-feed-service/internal/client/stream"
)

const refreshInterval = 250 * time.Millisecond

// Rows flattens entries into table rows: a header row per author, then its posts.
func Rows(entries []feed.Entry) [][]string {
	rows := [][]string{{"author", "post", "title"}}
	for _, e := range entries {
		switch e.Kind {
		case feed.AuthorHeader:
			rows = append(rows, []string{AuthorLabel(e.Author.ID, e.Author.Name), "", ""})
		case feed.PostEntry:
			rows = append(rows, []string{"", "#" + e.Post.ID, e.Post.Title})
		}
	}
	return rows
}

func AuthorLabel(id int64, name string) string {
	if name == "" {
		return fmt.Sprintf("author %d", id)
	}
	return fmt.Sprintf("%s (%d)", name, id)
}

// StatusLine is the connection indicator; anything but connected reads as stale.
func StatusLine(s stream.State, posts int) string {
	if s == stream.Connected {
		return fmt.Sprintf("live | %d posts | q to quit", posts)
	}
	return fmt.Sprintf("%s, feed may be stale | %d posts | q to quit", s, posts)
}

type StateFunc func() stream.State

// Run draws the feed until ctx ends or the user presses q or Ctrl-C.
func Run(ctx context.Context, f *feed.Feed, state StateFunc) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer ui.Close()

	status := widgets.NewParagraph()
	status.Title = "post feed"

	table := widgets.NewTable()
	table.RowSeparator = false
	table.TextStyle = ui.NewStyle(ui.ColorWhite)

	var (
		lastVersion uint64       = ^uint64(0)
		lastState   stream.State = -1
	)
	draw := func() {
		v, s := f.Version(), state()
		if v == lastVersion && s == lastState {
			return
		}
		lastVersion, lastState = v, s

		w, h := ui.TerminalDimensions()
		status.Text = StatusLine(s, f.Len())
		status.SetRect(0, 0, w, 3)

		rows := Rows(f.Entries())
		// Keep the newest rows on screen.
		if visible := h - 5; visible > 1 && len(rows) > visible {
			rows = append(rows[:1:1], rows[len(rows)-visible+1:]...)
		}
		table.Rows = rows
		table.SetRect(0, 3, w, h)

		ui.Render(status, table)
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	events := ui.PollEvents()

	draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				lastVersion = ^uint64(0)
				ui.Clear()
				draw()
			}
		case <-ticker.C:
			draw()
		}
	}
}
