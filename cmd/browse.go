package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"taxiiwatch/internal/feed"
	"taxiiwatch/internal/stix"
)

// browseCmd represents the browse command
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse stored indicators in a terminal table",
	Long: `Open a terminal table over the local indicator store. Type in the
filter field to narrow by value, type, description, or source; press
Escape or q in the table to quit.

The browser reads the store file only; run 'taxiiwatch refresh' first to
populate it.`,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	config := GetConfig()
	logger := log.New(os.Stderr, "[browse] ", log.LstdFlags)

	indicators, err := feed.NewIndicatorStore(config.Data.IndicatorsFile, logger).List()
	if err != nil {
		return fmt.Errorf("failed to load indicators: %w", err)
	}
	if len(indicators) == 0 {
		fmt.Println("Indicator store is empty; run 'taxiiwatch refresh' first.")
		return nil
	}

	app := tview.NewApplication()
	table := tview.NewTable().
		SetFixed(1, 0).
		SetSelectable(true, false)
	table.SetBorder(true).SetTitle(fmt.Sprintf(" Indicators (%d) ", len(indicators)))

	renderTable(table, indicators, "")

	filter := tview.NewInputField().
		SetLabel(" Filter: ").
		SetFieldWidth(0)
	filter.SetChangedFunc(func(text string) {
		renderTable(table, indicators, text)
	})
	filter.SetDoneFunc(func(key tcell.Key) {
		app.SetFocus(table)
	})

	table.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch {
		case ev.Key() == tcell.KeyEscape, ev.Rune() == 'q':
			app.Stop()
			return nil
		case ev.Rune() == '/':
			app.SetFocus(filter)
			return nil
		}
		return ev
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(filter, 1, 0, true).
		AddItem(table, 0, 1, false)

	return app.SetRoot(layout, true).Run()
}

var browseHeaders = []string{"Type", "Value", "First Seen", "Last Seen", "Source", "Feed"}

// renderTable fills the table with the indicators matching the filter.
func renderTable(table *tview.Table, indicators []stix.Indicator, query string) {
	table.Clear()
	for col, header := range browseHeaders {
		table.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold))
	}

	query = strings.ToLower(query)
	row := 1
	for _, ind := range indicators {
		if query != "" && !matchesIndicator(ind, query) {
			continue
		}
		cells := []string{
			ind.Type,
			truncate(ind.Value, 60),
			ind.FirstSeen,
			ind.LastSeen,
			ind.Source,
			ind.FeedSource,
		}
		for col, text := range cells {
			table.SetCell(row, col, tview.NewTableCell(text))
		}
		row++
	}
	if row == 1 {
		table.SetCell(1, 0, tview.NewTableCell("No matching indicators").
			SetTextColor(tcell.ColorGray).
			SetSelectable(false))
	}
}

func matchesIndicator(ind stix.Indicator, query string) bool {
	return strings.Contains(strings.ToLower(ind.Value), query) ||
		strings.Contains(strings.ToLower(ind.Type), query) ||
		strings.Contains(strings.ToLower(ind.Description), query) ||
		strings.Contains(strings.ToLower(ind.Source), query) ||
		strings.Contains(strings.ToLower(ind.FeedSource), query)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
