package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"samplepipe/internal/pipeline"
)

func renderSummary(result *pipeline.Result) string {
	if result == nil {
		return ""
	}
	var b strings.Builder

	rows := [][]string{
		{"Tag", result.Tag},
		{"State", string(result.State)},
		{"Complete", strconv.Itoa(result.Complete())},
		{"Failed", strconv.Itoa(result.Failed())},
		{"Contexts", strconv.Itoa(len(result.Contexts))},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
	}
	if len(result.Cleaned) > 0 {
		rows = append(rows, []string{"Cleaned", humanize.Comma(int64(len(result.Cleaned))) + " paths"})
	}
	b.WriteString(renderTable("Run", []string{"Field", "Value"}, rows))

	var failed [][]string
	if result.Samples != nil {
		for _, item := range result.Samples.Failed().Items {
			failed = append(failed, []string{item.ID, failureReason(item.FailureReason)})
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable("Failed samples", []string{"Sample", "Reason"}, failed))
	}

	var problems [][]string
	for _, c := range result.Contexts {
		if c.Err != nil {
			problems = append(problems, []string{"runner", contextName(c.Runner, c.Partition), strconv.Itoa(c.Samples), c.Err.Error()})
		}
	}
	for _, h := range result.HookErrors() {
		problems = append(problems, []string{string(h.Phase) + "-hook", h.Name, strconv.Itoa(h.Samples), h.Err.Error()})
	}
	if len(problems) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable("Errors", []string{"Kind", "Name", "Samples", "Error"}, problems, 2))
	}
	if len(result.Unsaved) > 0 {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%d declared output(s) were not copied to the result directory\n", len(result.Unsaved)))
	}
	return b.String()
}

func contextName(runner, partition string) string {
	if partition == "" {
		return runner
	}
	return runner + "[" + partition + "]"
}

func failureReason(reason string) string {
	if reason == "" {
		return "incomplete"
	}
	lines := strings.Split(reason, "\n")
	if len(lines) > 1 {
		return fmt.Sprintf("%s (+%d more)", lines[0], len(lines)-1)
	}
	return reason
}
