package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zboralski/pteosal/internal/config"
	"github.com/zboralski/pteosal/internal/scenario"
	"github.com/zboralski/pteosal/internal/trace"
	"github.com/zboralski/pteosal/internal/ui/colorize"
)

func printHeader(cfg config.Config, named int) {
	which := "all scenarios"
	if named > 0 {
		which = fmt.Sprintf("%d scenarios", named)
	}
	fmt.Println()
	fmt.Printf("%s pteosal ─ POSIX threads OSAL runner\n", colorize.Header("▶"))
	fmt.Printf("  %s %s  %s %s\n",
		colorize.Detail("Kernel:"), colorize.Name(cfg.Kernel),
		colorize.Detail("Running:"), which)
	fmt.Println()
}

func formatResult(res scenario.Result) string {
	var b strings.Builder
	if res.Passed() {
		b.WriteString(colorize.Pass("PASS"))
	} else {
		b.WriteString(colorize.Error("FAIL"))
	}
	b.WriteString("  ")
	b.WriteString(colorize.Name(fmt.Sprintf("%-32s", res.Name)))
	b.WriteString(colorize.Detail(res.Duration.Round(time.Millisecond).String()))
	if res.Err != nil {
		b.WriteString("  ")
		b.WriteString(colorize.Error(res.Err.Error()))
	}
	return b.String()
}

func formatEvent(e *trace.Event) string {
	var b strings.Builder
	b.Grow(128)

	b.WriteString("      ")
	b.WriteString(colorize.TID(fmt.Sprintf("%6d", e.TID)))
	b.WriteString("  ")

	tags := strings.Join(e.Tags.Strings(), " ")
	b.WriteString(colorize.Tag(fmt.Sprintf("%-24s", tags)))
	b.WriteString(colorize.Name(e.Name))

	var comments []string
	if e.Detail != "" {
		comments = append(comments, e.Detail)
	}
	keys := make([]string, 0, len(e.Annotations))
	for k := range e.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		comments = append(comments, k+"="+e.Annotations[k])
	}
	if len(comments) > 0 {
		b.WriteString("  ")
		b.WriteString(colorize.Comment("; " + strings.Join(comments, ", ")))
	}
	return b.String()
}

func printStats(results []scenario.Result, failed int) {
	var total time.Duration
	events := 0
	for _, r := range results {
		total += r.Duration
		events += len(r.Events)
	}

	fmt.Println()
	fmt.Print(colorize.Border("───────────────────────────────────────── "))
	fmt.Printf("%s passed  %s failed  %s events  %s",
		colorize.Name(fmt.Sprintf("%d", len(results)-failed)),
		colorize.Name(fmt.Sprintf("%d", failed)),
		colorize.Name(fmt.Sprintf("%d", events)),
		colorize.Detail(total.Round(time.Millisecond).String()))
	fmt.Println()
}
