package web

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/adpanel/internal/adapter/driving/web/viewmodel"
)

// Layout wraps body in the base HTML document.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title></head><body>`,
			templ.EscapeString(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// ConnectionsPage renders provider connection cards and the cached campaign table.
func ConnectionsPage(data vm.DashboardViewModel) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		ew.printf(`<main><h1>Ad platforms</h1>`)
		if data.Status != "" {
			ew.printf(`<p class="flash flash-%s">%s</p>`, templ.EscapeString(data.Status), templ.EscapeString(flashMessage(data)))
		}

		ew.printf(`<section class="connections">`)
		for _, c := range data.Connections {
			if err := ConnectionCard(c).Render(ctx, ew); err != nil {
				return err
			}
		}
		ew.printf(`</section>`)

		ew.printf(`<section class="campaigns"><h2>Campaigns</h2><p>Total spend %s, total leads %d</p>`,
			templ.EscapeString(data.TotalSpend), data.TotalLeads)
		if len(data.Campaigns) == 0 {
			ew.printf(`<p class="empty">No campaigns cached yet.</p>`)
		} else {
			ew.printf(`<table><thead><tr><th>Platform</th><th>Campaign</th><th>Status</th><th>Spend</th><th>Leads</th><th>Updated</th></tr></thead><tbody>`)
			for _, row := range data.Campaigns {
				ew.printf(`<tr data-campaign-id="%s"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>`,
					templ.EscapeString(row.ID),
					templ.EscapeString(row.Platform),
					templ.EscapeString(row.Name),
					templ.EscapeString(row.Status),
					templ.EscapeString(row.Spend),
					row.Conversions,
					templ.EscapeString(row.UpdatedAt),
				)
			}
			ew.printf(`</tbody></table>`)
		}
		ew.printf(`</section></main>`)
		return ew.err
	})
}

// ConnectionCard renders one provider's connection state.
func ConnectionCard(c vm.ConnectionViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		ew.printf(`<article class="connection" data-provider="%s"><h3>%s</h3>`,
			templ.EscapeString(c.Provider), templ.EscapeString(c.DisplayName))
		if c.Connected {
			ew.printf(`<p class="connected">Connected</p>`)
			if c.ExpiresAt != "" {
				ew.printf(`<p>Token expires %s</p>`, templ.EscapeString(c.ExpiresAt))
			}
		} else {
			ew.printf(`<p class="disconnected">%s</p>`, templ.EscapeString(c.Reason))
		}
		if c.UpdatedAt != "" {
			ew.printf(`<p>Last authorized %s</p>`, templ.EscapeString(c.UpdatedAt))
		}

		label := "Connect"
		if c.Connected {
			label = "Reconnect"
		}
		ew.printf(`<a href="%s">%s</a></article>`,
			templ.EscapeString(string(templ.URL(c.ConnectPath))), label)
		return ew.err
	})
}

func flashMessage(data vm.DashboardViewModel) string {
	if data.Status == "success" {
		return "Connected " + data.Provider + "."
	}
	return "Could not connect " + data.Provider + ". Try again."
}

// errWriter keeps the first write error so components can render sequentially.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
