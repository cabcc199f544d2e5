package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"chauffe/internal/logging"
	"chauffe/internal/stats"

	"github.com/spf13/cobra"
)

var aggregateFile string

// readRecords returns packed records or, for a JSON array file, raw values.
func readRecords(path string) ([]string, []json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil, raws, nil
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil, sc.Err()
}

func runAggregate(cmd *cobra.Command, args []string) error {
	records := append([]string(nil), args...)
	var fileRaws []json.RawMessage
	if aggregateFile != "" {
		lines, raws, err := readRecords(aggregateFile)
		if err != nil {
			return err
		}
		records = append(records, lines...)
		fileRaws = raws
	}
	if len(records) == 0 && len(fileRaws) == 0 {
		return errors.New("no DLOID records given")
	}

	// Packed records become JSON strings so both forms go through one pass.
	raws := make([]json.RawMessage, 0, len(records)+len(fileRaws))
	for _, r := range records {
		quoted, err := json.Marshal(r)
		if err != nil {
			return err
		}
		raws = append(raws, quoted)
	}
	raws = append(raws, fileRaws...)
	res := stats.AggregateRaw(raws)
	res.LogSkipped(logging.Get(logging.CategoryStats))

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	lines := []string{
		title("DLOID aggregate"),
		row("Records", len(raws)),
		row("Counted", res.Counted),
		row("Skipped", res.Skipped),
		row("CHAUFFEcoins", res.Total),
	}
	if res.Overflow {
		lines = append(lines, errStyle.Render("total overflowed and is saturated"))
	}
	for _, e := range res.Errors {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("  #%d: %s", e.Index, e.Reason)))
	}
	fmt.Fprintln(out, box(lines...))
	return nil
}
