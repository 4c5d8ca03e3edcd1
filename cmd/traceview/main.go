// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// traceview serves a trace database to a timeline viewer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pmuetschard/gapid/internal/app"
	"github.com/pmuetschard/gapid/internal/config"
	"github.com/pmuetschard/gapid/internal/engine"
)

var (
	version = "0.1"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "query":
			exit(runQuery(os.Args[2:], os.Stdout))
		case "init":
			exit(runInit(os.Args[2:]))
		}
	}

	// Parse flags
	var (
		configPath  string
		tracePath   string
		host        string
		port        int
		showVersion bool
		debug       bool
		noWatch     bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&tracePath, "trace", "", "Trace database to open (overrides config)")
	flag.StringVar(&tracePath, "t", "", "Trace database to open (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.BoolVar(&noWatch, "no-watch", false, "Do not reopen the trace when the file changes")
	flag.Parse()

	if showVersion {
		fmt.Printf("traceview %s\n", version)
		os.Exit(0)
	}

	// A trace given on the command line makes the config file optional.
	if configPath == "" {
		found, err := config.NewLoader().FindConfig()
		if err != nil && tracePath == "" {
			log.Fatalf("Error: %v", err)
		}
		configPath = found
	}
	if configPath != "" {
		log.Printf("Using config: %s", configPath)
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		TracePath:  tracePath,
		Host:       host,
		Port:       port,
		Debug:      debug,
		NoWatch:    noWatch,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

func exit(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// runQuery handles "traceview query <trace.db> <sql>".
func runQuery(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	limit := fs.Int("limit", 100, "Maximum rows to print (0 prints all)")
	timeout := fs.Duration("timeout", time.Minute, "Query timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: traceview query [-limit n] <trace.db> <sql>")
	}

	path := fs.Arg(0)
	if _, err := os.Stat(path); err != nil {
		return err
	}
	db, err := engine.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	start := time.Now()
	res := db.Query(ctx, strings.Join(fs.Args()[1:], " "))
	if err := res.Err(); err != nil {
		return err
	}
	printResult(out, res, *limit)
	fmt.Fprintf(out, "\n%d rows in %v\n", res.NumRecords, time.Since(start).Round(time.Millisecond))
	return nil
}

// printResult renders a result as an aligned text table.
func printResult(out io.Writer, res *engine.Result, limit int) {
	rows := res.NumRecords
	if limit > 0 && rows > limit {
		rows = limit
	}

	widths := make([]int, len(res.Columns))
	cells := make([][]string, rows)
	for col, c := range res.Columns {
		widths[col] = len(c.Name)
	}
	for row := range cells {
		cells[row] = make([]string, len(res.Columns))
		for col := range res.Columns {
			text := res.Text(col, row)
			cells[row][col] = text
			widths[col] = max(widths[col], len(text))
		}
	}

	line := func(values []string) {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	header := make([]string, len(res.Columns))
	rule := make([]string, len(res.Columns))
	for col, c := range res.Columns {
		header[col] = c.Name
		rule[col] = strings.Repeat("-", widths[col])
	}
	line(header)
	line(rule)
	for _, row := range cells {
		line(row)
	}
	if rows < res.NumRecords {
		fmt.Fprintf(out, "... %d more\n", res.NumRecords-rows)
	}
}

// runInit handles "traceview init <trace.db>": it creates an empty trace
// database with the tables the viewer reads.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: traceview init <trace.db>")
	}

	path := fs.Arg(0)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; remove it first", path)
	}
	db, err := engine.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.CreateSchema(); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
