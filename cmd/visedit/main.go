package main

import (
	"os"
	"strings"

	"visedit-cli/internal/cli"
)

// pageFlag returns the edit flag for a bare page argument: --url for http(s)
// addresses, --file for HTML snapshots.
func pageFlag(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return "--url"
	case strings.HasSuffix(strings.ToLower(s), ".html"), strings.HasSuffix(strings.ToLower(s), ".htm"):
		return "--file"
	}
	return ""
}

// rewritePageArgs turns `visedit <url|file>` into `visedit edit --url <url>`
// (or --file). Cobra treats the first positional token as a subcommand, so
// argv is rewritten before parsing.
func rewritePageArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}
	valueFlags := map[string]bool{
		"--config":    true,
		"--store":     true,
		"--format":    true,
		"--log-level": true,
		"--log-file":  true,
	}

	// rewrite inserts the subcommand before argv[page]; argv[drop:page] is
	// left out.
	rewrite := func(drop, page int) []string {
		out := make([]string, 0, len(argv)+2)
		out = append(out, argv[:drop]...)
		out = append(out, "edit", pageFlag(argv[page]))
		out = append(out, argv[page:]...)
		return out
	}
	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && pageFlag(argv[i+1]) != "" {
				// The separator goes so the page binds to the flag.
				return rewrite(i, i+1)
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		if pageFlag(a) != "" {
			return rewrite(i, i)
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewritePageArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
