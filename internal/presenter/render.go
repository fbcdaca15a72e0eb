package presenter

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"go-plant-identifier/pkg/models"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
)

// RenderText renders a view for a terminal. Only sections present in the
// view are printed.
func RenderText(view View, colorize bool) string {
	var lines []string

	switch {
	case view.Loading:
		lines = append(lines, paint("Identifying...", ansiBlue, colorize))
	case view.Error != "":
		lines = append(lines, paint(view.Error, ansiRed, colorize))
	}

	if view.Summary != nil {
		rows := [][]string{}
		if view.Summary.CommonNames != "" {
			rows = append(rows, []string{"Common names", view.Summary.CommonNames})
		}
		if view.Summary.ScientificName != "" {
			rows = append(rows, []string{"Scientific name", view.Summary.ScientificName})
		}
		if view.Summary.Description != "" {
			rows = append(rows, []string{"Description", view.Summary.Description})
		}
		lines = append(lines, paint("Plant identified", ansiGreen, colorize))
		if len(rows) > 0 {
			lines = append(lines, renderFields(rows))
		}
	}

	if view.Details != nil {
		lines = append(lines, renderSection("Details", colorize)...)
		if tips := view.Details.CareTips; tips != nil {
			lines = append(lines, renderFields(nonEmpty(
				[]string{"Watering", tips.Watering},
				[]string{"Sunlight", tips.Sunlight},
				[]string{"Soil", tips.Soil},
				[]string{"Temperature", tips.Temperature},
			)))
		}
		if view.Details.Toxicity != "" {
			lines = append(lines, renderFields([][]string{{"Toxicity", view.Details.Toxicity}}))
		}
		if growth := view.Details.GrowthDetails; growth != nil {
			lines = append(lines, renderFields(nonEmpty(
				[]string{"Height", growth.Height},
				[]string{"Spread", growth.Spread},
				[]string{"Growth rate", growth.GrowthRate},
			)))
		}
		for _, url := range view.Details.Images {
			lines = append(lines, "  "+url)
		}
	}

	return strings.Join(lines, "\n")
}

// RenderSavedPlants renders the saved plants list as a table
func RenderSavedPlants(plants []models.SavedPlant) string {
	if len(plants) == 0 {
		return "No saved plants."
	}
	rows := make([][]string, 0, len(plants))
	for _, plant := range plants {
		rows = append(rows, []string{
			fmt.Sprintf("%d", plant.Index+1),
			plant.Details.Scientific(),
			plant.Details.CommonNamesText(),
		})
	}
	return renderTable([]string{"#", "Scientific name", "Common names"}, rows, []text.Align{text.AlignRight})
}

// RenderMatches renders search matches as a table, best first
func RenderMatches(matches []models.SearchMatch) string {
	if len(matches) == 0 {
		return "No matching plants."
	}
	rows := make([][]string, 0, len(matches))
	for _, match := range matches {
		rows = append(rows, []string{
			fmt.Sprintf("%d", match.Index+1),
			match.Details.Scientific(),
			match.MatchedName,
			fmt.Sprintf("%.2f", match.Score),
		})
	}
	return renderTable(
		[]string{"#", "Scientific name", "Matched name", "Score"},
		rows,
		[]text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignRight},
	)
}

func renderFields(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	for _, row := range rows {
		tw.AppendRow(table.Row{row[0], row[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 72},
	})
	return tw.Render()
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	// headers are printed as written
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)
	return tw.Render()
}

func renderSection(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	return []string{paint(line, ansiBlue, colorize)}
}

func nonEmpty(rows ...[]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row[1]) != "" {
			out = append(out, row)
		}
	}
	return out
}

func paint(s, color string, colorize bool) string {
	if !colorize {
		return s
	}
	return color + s + ansiReset
}
