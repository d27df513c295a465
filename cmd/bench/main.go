package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/strata"
)

func main() {
	count := flag.Int("count", 1000, "Number of nodes to build")
	width := flag.Int("width", 20, "Children per section")
	keep := flag.Bool("keep", false, "Keep the benchmark repository after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "strata_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	ctx := context.Background()
	repoDir := filepath.Join(benchDir, "site")
	if _, err := strata.Scaffold(ctx, repoDir, strata.WithForceTemp(false)); err != nil {
		panic(err)
	}

	doc := filepath.Join(benchDir, "bench.yaml")
	if err := os.WriteFile(doc, []byte(document(*count, *width)), 0o644); err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	opts := []strata.Option{
		strata.WithLogger(logger),
		strata.WithLanguages("eng-GB", "ger-DE"),
		strata.WithIndexPath("search.db"),
	}

	eng, err := strata.New(repoDir, opts...)
	if err != nil {
		panic(err)
	}
	start := time.Now()
	report, err := eng.ApplyFile(ctx, doc)
	if err != nil {
		panic(err)
	}
	build := time.Since(start)
	if err := eng.Close(); err != nil {
		panic(err)
	}

	// A new engine reloads the repository from disk, as a new CLI run would.
	start = time.Now()
	eng, err = strata.New(repoDir, opts...)
	if err != nil {
		panic(err)
	}
	load := time.Since(start)

	start = time.Now()
	docs, err := eng.Search(ctx, "node", "ger-DE")
	if err != nil {
		panic(err)
	}
	search := time.Since(start)
	_ = eng.Close()

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d nodes, %d locations created):\n", *count, report.Ledger.Len())
	fmt.Printf("  Build:  %v\n", build)
	fmt.Printf("  Load:   %v\n", load)
	fmt.Printf("  Search: %v (%d hits)\n", search, len(docs))
	fmt.Printf("--------------------------------------------------\n")
}

// document returns a build document of count folders grouped in sections
// of width children.
func document(count, width int) string {
	var b strings.Builder
	b.WriteString("content:\n")
	for n := 0; n < count; {
		fmt.Fprintf(&b, "  - class: folder\n    name: Section %d\n    ger-DE:\n      name: Abschnitt %d\n    children:\n", n, n)
		n++
		for i := 0; i < width && n < count; i++ {
			fmt.Fprintf(&b, "      - class: folder\n        name: Node %d\n        description: \"**node** %d\"\n", n, n)
			n++
		}
	}
	return b.String()
}
