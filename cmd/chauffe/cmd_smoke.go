package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"chauffe/internal/compat"
	"chauffe/internal/logging"
	"chauffe/internal/smoke"

	"github.com/spf13/cobra"
)

func runSmoke(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	hcfg := clientConfig(cfg)
	if file := cfg.Compatibility.File; file != "" {
		versions, err := compat.LoadSetFile(file)
		if err != nil {
			return err
		}
		hcfg.CompatibleVersions = versions
	}

	h := smoke.New(hcfg, logging.Get(logging.CategorySmoke))
	rep, err := h.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, rep); err != nil {
			return err
		}
	} else {
		renderSmoke(out, rep)
	}

	if rep.Overall == smoke.OutcomeFailure {
		return errors.New("smoke test failed")
	}
	return nil
}

func renderSmoke(out io.Writer, rep smoke.Report) {
	lines := []string{
		title("CloudManager smoke test"),
		row("Service", rep.BaseURL),
		row("Verdict", verdictBadge(rep.Verdict)),
	}
	for _, s := range rep.Steps {
		detail := s.Detail
		if !s.Success {
			detail = s.Error
		}
		lines = append(lines, fmt.Sprintf("%s %-18s %s %s",
			passMark(s.Success), s.Name, mutedStyle.Render(s.Duration.Round(time.Millisecond).String()), detail))
	}
	if rep.Version != nil {
		lines = append(lines, row("Version", fmt.Sprintf("%s (built %s)", rep.Version.Version, rep.Version.BuildDate)))
	} else if rep.VersionError != "" {
		lines = append(lines, row("Version", mutedStyle.Render(rep.VersionError)))
	}
	lines = append(lines, row("Overall", fmt.Sprintf("%s %d/%d", outcomeBadge(rep.Overall), rep.Passed, rep.Total)))
	fmt.Fprintln(out, box(lines...))
}
