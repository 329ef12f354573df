// Command qsjs is the engine's command-line entry point: run a script end
// to end, watch one under hot-module-reload, or drop into a REPL. It is
// the one executable that actually drives internal/lexer through
// internal/parser, internal/compiler, and internal/vm, with
// internal/module and internal/hmr wired in underneath via internal/engine
// — and the only command this module builds.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/qsjs/quicksilver/internal/compiler"
	"github.com/qsjs/quicksilver/internal/config"
	"github.com/qsjs/quicksilver/internal/engine"
	"github.com/qsjs/quicksilver/internal/logger"
	"github.com/qsjs/quicksilver/internal/parser"
	"github.com/qsjs/quicksilver/internal/sandbox"
	"github.com/spf13/cobra"
)

// loadSettings resolves the project settings file by walking up from the
// working directory, merges it under the user's ~/.qsjs/settings.json, and
// returns the result — flags parsed afterward always win over either file.
func loadSettings() config.Settings {
	mgr := config.NewManager()
	userDir, err := config.GetUserConfigDir()
	if err != nil {
		return config.Settings{LogLevel: "warn", PollMillis: 500}
	}
	projectDir, err := config.GetProjectDir(".")
	if err != nil {
		projectDir = "."
	}
	_ = mgr.Load(userDir, projectDir)
	return mgr.Get()
}

func main() {
	settings := loadSettings()
	var logLevel string

	root := &cobra.Command{
		Use:   "qsjs",
		Short: "quicksilver — a small JavaScript engine",
		Long:  "Lexes, parses, compiles, and runs JavaScript with a module loader and host API surface gated by capability grants.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logLevel, "")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", settings.LogLevel, "log level: debug, info, warn, error")

	root.AddCommand(runCmd(settings), watchCmd(settings), replCmd(settings))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sandboxFlags(cmd *cobra.Command, defaults config.Settings) {
	cmd.Flags().Bool("allow-all", defaults.AllowAll, "Grant every capability (no sandboxing)")
	cmd.Flags().StringSlice("allow-read", defaults.AllowRead, "Allow filesystem reads, optionally scoped to a path prefix")
	cmd.Flags().StringSlice("allow-write", defaults.AllowWrite, "Allow filesystem writes, optionally scoped to a path prefix")
	cmd.Flags().StringSlice("allow-net", defaults.AllowNet, "Allow network access, optionally scoped to a host")
	cmd.Flags().StringSlice("allow-env", defaults.AllowEnv, "Allow reading environment variables, optionally scoped to a name")
	cmd.Flags().Bool("allow-run", defaults.AllowRun, "Allow spawning subprocesses")
}

// buildSandbox turns this invocation's --allow-* flags into a Grants set.
// Each --allow-read/-write/-net/-env value scopes its grant to a prefix
// match (sandbox.PrefixPattern), after Deno's own --allow-read=/path
// convention this capability model is grounded on; --allow-all instead
// grants every capability with sandbox.AnyPattern().
func buildSandbox(cmd *cobra.Command) (sandbox.Checker, error) {
	allowAll, _ := cmd.Flags().GetBool("allow-all")
	if allowAll {
		return allowAllGrants(), nil
	}
	grants := sandbox.NewGrants()

	patterns := func(flag string) ([]sandbox.Pattern, error) {
		values, err := cmd.Flags().GetStringSlice(flag)
		if err != nil {
			return nil, err
		}
		out := make([]sandbox.Pattern, 0, len(values))
		for _, v := range values {
			out = append(out, sandbox.PrefixPattern(v))
		}
		return out, nil
	}

	reads, err := patterns("allow-read")
	if err != nil {
		return nil, err
	}
	for _, p := range reads {
		grants.AllowFileRead(p)
	}
	writes, err := patterns("allow-write")
	if err != nil {
		return nil, err
	}
	for _, p := range writes {
		grants.AllowFileWrite(p)
	}
	nets, err := patterns("allow-net")
	if err != nil {
		return nil, err
	}
	for _, p := range nets {
		grants.AllowNetwork(p)
	}
	envs, err := patterns("allow-env")
	if err != nil {
		return nil, err
	}
	for _, p := range envs {
		grants.AllowEnv(p)
	}
	if allowRun, _ := cmd.Flags().GetBool("allow-run"); allowRun {
		grants.AllowSubprocess()
	}
	return grants, nil
}

func allowAllGrants() sandbox.Checker {
	return sandbox.NewGrants().
		AllowFileRead(sandbox.AnyPattern()).
		AllowFileWrite(sandbox.AnyPattern()).
		AllowNetwork(sandbox.AnyPattern()).
		AllowEnv(sandbox.AnyPattern()).
		AllowSubprocess()
}

func runCmd(defaults config.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a script file and every module it imports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := buildSandbox(cmd)
			if err != nil {
				return err
			}
			eng := engine.New(".", logger.Log)
			eng.SetSandbox(checker)
			if _, err := eng.Run(args[0]); err != nil {
				return err
			}
			return nil
		},
	}
	sandboxFlags(cmd, defaults)
	return cmd
}

func watchCmd(defaults config.Settings) *cobra.Command {
	var pollMillis int
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Run a script and re-evaluate it whenever a dependency changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := buildSandbox(cmd)
			if err != nil {
				return err
			}
			eng := engine.New(".", logger.Log)
			eng.SetSandbox(checker)
			fmt.Printf("watching %s (ctrl-c to stop)\n", args[0])
			return eng.Watch(args[0], time.Duration(pollMillis)*time.Millisecond, func(reason string) {
				fmt.Printf("[hmr] %s\n", reason)
			})
		},
	}
	sandboxFlags(cmd, defaults)
	cmd.Flags().IntVar(&pollMillis, "poll-ms", defaults.PollMillis, "File watch poll interval in milliseconds")
	return cmd
}

func replCmd(defaults config.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive read-eval-print loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := buildSandbox(cmd)
			if err != nil {
				return err
			}
			eng := engine.New(".", logger.Log)
			eng.SetSandbox(checker)
			return runREPL(eng)
		},
	}
	sandboxFlags(cmd, defaults)
	return cmd
}

// runREPL keeps one VM alive across every line of input, so `let`/`const`/
// `function` bindings a line introduces are visible to the next one — the
// same persistent-globals model every module in the engine's non-REPL
// path gets too, just without a module.Loader or file on disk behind it.
func runREPL(eng *engine.Engine) error {
	mv := eng.NewVM()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("qsjs repl — ctrl-d to exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		program, err := parser.ParseProgram(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
			continue
		}
		chunk, err := compiler.CompileProgram(program, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compile error: %v\n", err)
			continue
		}
		result, err := mv.RunProgram(chunk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		fmt.Println(mv.Inspect(result))
	}
}
