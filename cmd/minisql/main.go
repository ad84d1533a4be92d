// Command minisql is the interactive console for the embedded engine:
// a readline REPL over one Executor, plus meta-commands and a one-shot
// flag for scripting.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mistlake/minisql/internal/config"
	"github.com/mistlake/minisql/internal/sql/executor"
)

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".minisql_history"
	}
	return filepath.Join(home, ".minisql_history")
}

func main() {
	var (
		configPath = flag.String("config", "", "path to minisql.yaml")
		oneShotSQL = flag.String("c", "", "execute one SQL statement and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minisql: %v\n", err)
		os.Exit(1)
	}
	if cfg.History.Path == "" {
		cfg.History.Path = defaultHistoryPath()
	}

	ex := executor.New(slog.Default(), cfg.Index.DefaultT)
	defer func() { _ = ex.Close() }()

	if s := strings.TrimSpace(*oneShotSQL); s != "" {
		res := ex.Execute(s)
		fmt.Println(res.Render())
		if res.Err != nil {
			os.Exit(1)
		}
		return
	}

	runRepl(ex, cfg)
}

func runRepl(ex *executor.Executor, cfg *config.Config) {
	hist := newHistory(cfg.History.Path)
	_ = hist.load(cfg.History.Max)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "minisql> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "minisql: readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range hist.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Println("minisql console. type \\help for help, \\q to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "\\") || line == "quit" || line == "exit" {
			switch line {
			case "\\q", "quit", "exit":
				return
			case "\\help":
				printHelp()
			case "\\history":
				hist.print(50)
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		_ = hist.append(line)
		_ = rl.SaveHistory(line)

		res := ex.Execute(line)
		fmt.Println(res.Render())
	}
}

func printHelp() {
	fmt.Print(`commands:
  CREATE DATABASE <path>
  USE <path>
  CLOSE DATABASE | CLOSE
  SHOW TABLES
  CREATE TABLE <name> (<col> <type>, ...)     ; an id INT column is prepended
  INSERT INTO <table> (<cols>) VALUES (<vals>)
  SELECT <proj> FROM <table> [WHERE <expr>]
  DELETE FROM <table> [WHERE <expr>]
  UPDATE <table> SET <col>=<lit>, ... [WHERE <expr>]
  CREATE INDEX <name> ON <table> (<col>)

types: INT, INTEGER, FLOAT, REAL, CHAR(n)

meta:
  \q | quit | exit
  \history
  \help
`)
}

type history struct {
	path  string
	lines []string
}

func newHistory(path string) *history { return &history{path: path} }

func (h *history) load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *history) append(stmt string) error {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, stmt); err != nil {
		return err
	}
	h.lines = append(h.lines, stmt)
	return nil
}

func (h *history) print(last int) {
	if last <= 0 || last > len(h.lines) {
		last = len(h.lines)
	}
	start := len(h.lines) - last
	if start < 0 {
		start = 0
	}
	for i := start; i < len(h.lines); i++ {
		fmt.Printf("%5d  %s\n", i+1, h.lines[i])
	}
}
