package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/forgecode/orchestra/internal/provider"
)

// writeTranscript renders a run to a markdown-ish file: the prompt,
// then each provider's answer (or error), then the critiques each
// provider received when the dialectical strategy ran.
func writeTranscript(path, prompt string, rep report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# orchestra transcript\n\n")
	fmt.Fprintf(&b, "generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "strategy: %s\n\n", rep.strategy)
	fmt.Fprintf(&b, "## prompt\n\n%s\n\n", prompt)

	names := make([]provider.Name, 0, len(rep.results))
	for p := range rep.results {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, p := range names {
		outcome := rep.results[p]
		fmt.Fprintf(&b, "## %s\n\n", p)
		if outcome.Err != nil {
			fmt.Fprintf(&b, "error (%s): %s\n\n", outcome.Err.Code, outcome.Err.Message)
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", outcome.Result.Content)
		u := outcome.Result.Usage
		fmt.Fprintf(&b, "tokens: %d in / %d out, cost: %s\n\n",
			u.InputTokens, u.OutputTokens, u.FormattedCost)
	}

	if rep.dialectical != nil {
		fmt.Fprintf(&b, "## critiques\n\n")
		critiqued := make([]provider.Name, 0, len(rep.dialectical.Antithesis))
		for p := range rep.dialectical.Antithesis {
			critiqued = append(critiqued, p)
		}
		sort.Slice(critiqued, func(i, j int) bool { return critiqued[i] < critiqued[j] })
		for _, p := range critiqued {
			fmt.Fprintf(&b, "### received by %s\n\n%s\n", p, rep.dialectical.Antithesis[p])
		}
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
