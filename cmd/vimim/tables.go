package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/hismailbulut/vimim/internal/types"
	"github.com/hismailbulut/vimim/pkg/bench"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

func printStatus(out io.Writer, status statusPayload) {
	if status.ConfigPath != "" {
		fmt.Fprintln(out, "Configuration:", status.ConfigPath)
	}
	table := newTable(out, "Mode", "Input Method")
	table.Append([]string{"previous", status.State.Previous.String()})
	table.Append([]string{"insert", status.State.InsertIM})
	table.Append([]string{"visual", status.State.VisualIM})
	table.Append([]string{"replace", status.State.ReplaceIM})
	table.SetFooter([]string{"transitions", strconv.FormatUint(status.State.Seq, 10)})
	table.Render()
	if len(status.Commands) > 0 {
		bench.PrintSummaries(out, status.Commands)
	}
}

func printHistory(out io.Writer, records []types.CommandRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No commands.")
		return
	}
	table := newTable(out, "Time", "Kind", "Mode", "Command", "Took", "Result")
	for _, rec := range records {
		result := "ok"
		if rec.Failed() {
			result = rec.Error
		} else if rec.Kind == types.CommandObtain {
			result = rec.Output
		}
		table.Append([]string{
			rec.StartedAt.Local().Format(time.TimeOnly),
			string(rec.Kind),
			rec.Mode,
			rec.Command,
			rec.Duration.Round(time.Millisecond).String(),
			result,
		})
	}
	table.Render()
}
