package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/felixbrock/promptopt/internal/app"
	"github.com/felixbrock/promptopt/internal/components"
	"github.com/felixbrock/promptopt/internal/persistence"
)

var version = "dev"

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
	// interactive is true when stdin is a terminal. Input labels are only
	// printed then so piped input gives clean output.
	interactive bool
	color       bool
}

type line struct {
	text string
	err  error
}

// console reads stdin line by line from one goroutine so the prompt, model
// and answers can all come from one pipe and a pending read can be
// abandoned when ctx is cancelled.
type console struct {
	out         io.Writer
	interactive bool
	lines       chan line
}

func newConsole(in io.Reader, out io.Writer, interactive bool) *console {
	c := &console{out: out, interactive: interactive, lines: make(chan line)}
	go c.scan(bufio.NewReader(in))
	return c
}

func (c *console) scan(r *bufio.Reader) {
	defer close(c.lines)

	for {
		text, err := r.ReadString('\n')
		c.lines <- line{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// readLine returns the next trimmed line. Once stdin is exhausted it keeps
// returning "".
func (c *console) readLine(ctx context.Context, label string) (string, error) {
	if c.interactive {
		fmt.Fprint(c.out, label)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", nil
		}
		if l.err != nil && !errors.Is(l.err, io.EOF) {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}

func (c *console) ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := components.Question(c.out, question); err != nil {
		return "", err
	}

	return c.readLine(ctx, "> ")
}

func newLogger(w io.Writer, level string, color bool) (*slog.Logger, error) {
	lvl, err := app.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
		NoColor:    !color,
	})), nil
}

func newRootCmd(s streams) *cobra.Command {
	return &cobra.Command{
		Use:           "prompt-optimizer",
		Short:         "Refine a rough prompt into an optimized one",
		Long:          "Reads a prompt and a model name from stdin, asks clarifying questions, tests the prompt against generated inputs and prints a rewritten prompt. Further lines of feedback refine the rewrite until an empty line.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			config, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(s.err, config.LogLevel, s.color)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			c := newConsole(s.in, s.out, s.interactive)

			prompt, err := c.readLine(ctx, "Enter your prompt: ")
			if err != nil {
				return err
			}

			model, err := c.readLine(ctx, fmt.Sprintf("Enter model name (default %s): ", config.DefaultModel))
			if err != nil {
				return err
			}

			optimizer, err := app.NewFromConfig(config,
				app.WithAskUser(c.ask),
				app.WithLogger(logger))
			if err != nil {
				return err
			}

			session, err := optimizer.Run(ctx, prompt, model)
			if err != nil {
				return err
			}

			if err := components.Results(s.out, session); err != nil {
				return err
			}

			for {
				feedback, err := c.readLine(ctx, "\nWhat would you like to change? (empty to finish): ")
				if err != nil {
					return err
				}
				if feedback == "" {
					break
				}

				if err := optimizer.Refine(ctx, session, feedback); err != nil {
					return err
				}
				if err := components.Results(s.out, session); err != nil {
					return err
				}
			}

			if config.ReportPath != "" {
				if err := persistence.WriteReport(ctx, config.ReportPath, components.Report(session)); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				logger.Info("report written", "path", config.ReportPath)
			}

			return nil
		},
	}
}

func run(ctx context.Context, args []string, s streams) int {
	cmd := newRootCmd(s)
	// cobra falls back to os.Args when args is nil.
	cmd.SetArgs(append([]string{}, args...))
	cmd.SetIn(s.in)
	cmd.SetOut(s.out)
	cmd.SetErr(s.err)

	if err := cmd.ExecuteContext(ctx); err != nil {
		errCtx := app.ErrContext(err)
		fmt.Fprintf(s.err, "Error: %s: %s\n", errCtx.Title, errCtx.Msg)
		return errCtx.Code
	}

	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := run(ctx, os.Args[1:], streams{
		in:          os.Stdin,
		out:         os.Stdout,
		err:         os.Stderr,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
		color:       isatty.IsTerminal(os.Stderr.Fd()),
	})

	stop()
	os.Exit(code)
}
