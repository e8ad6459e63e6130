// Package bench keeps timing statistics of the external commands vimim runs.
package bench

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
)

type funcBenchmark struct {
	calls     int
	failures  int
	totalTime time.Duration
	maxTime   time.Duration
}

// Summary is the aggregated measurement of one name.
type Summary struct {
	Name     string        `json:"name"`
	Calls    int           `json:"calls"`
	Failures int           `json:"failures"`
	Total    time.Duration `json:"total"`
	Average  time.Duration `json:"average"`
	Max      time.Duration `json:"max"`
}

var (
	mutex    sync.Mutex
	averages map[string]funcBenchmark
)

func init() {
	Reset()
}

func Reset() {
	mutex.Lock()
	defer mutex.Unlock()
	averages = make(map[string]funcBenchmark)
}

// Begin starts a measurement. The returned function stops it and records the
// elapsed time under name, counting it as a failure when failed is true.
func Begin() func(name string, failed bool) {
	before := time.Now()
	return func(name string, failed bool) {
		elapsed := time.Since(before)
		mutex.Lock()
		defer mutex.Unlock()
		val := averages[name]
		val.calls++
		val.totalTime += elapsed
		if elapsed > val.maxTime {
			val.maxTime = elapsed
		}
		if failed {
			val.failures++
		}
		averages[name] = val
	}
}

// Results returns the summaries sorted by total time, longest first.
func Results() []Summary {
	mutex.Lock()
	defer mutex.Unlock()
	list := make([]Summary, 0, len(averages))
	for key, val := range averages {
		list = append(list, Summary{
			Name:     key,
			Calls:    val.calls,
			Failures: val.failures,
			Total:    val.totalTime,
			Average:  val.totalTime / time.Duration(val.calls),
			Max:      val.maxTime,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Total == list[j].Total {
			return list[i].Name < list[j].Name
		}
		return list[i].Total > list[j].Total
	})
	return list
}

// This prints a table which has the measurement information of all commands.
func PrintResults(out io.Writer) {
	PrintSummaries(out, Results())
}

func PrintSummaries(out io.Writer, list []Summary) {
	if len(list) == 0 {
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{
		"NAME", "CALLS", "FAILED",
		"TOTAL", "AVERAGE", "MAX",
	})
	for _, r := range list {
		table.Append([]string{
			r.Name,
			fmt.Sprintf("%d", r.Calls),
			fmt.Sprintf("%d", r.Failures),
			r.Total.String(),
			r.Average.String(),
			r.Max.String(),
		})
	}
	table.Render()
}
