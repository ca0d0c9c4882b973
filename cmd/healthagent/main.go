package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"health-agent/handler"
	"health-agent/internal/config"
	"health-agent/internal/domain"
	"health-agent/internal/usecase"
)

// options carries the injectable dependencies of the CLI.
type options struct {
	loadConfig func() (*config.Config, error)
	open       func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error)
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func defaultOptions() options {
	return options{
		loadConfig: config.Load,
		open:       openApp,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

func main() {
	if err := newRootCmd(defaultOptions()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts options) *cobra.Command {
	root := &cobra.Command{
		Use:          "healthagent",
		Short:        "healthagent - conversational health assistant",
		SilenceUsage: true,
	}
	root.SetIn(opts.stdin)
	root.SetOut(opts.stdout)
	root.SetErr(opts.stderr)
	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSummaryCmd(opts),
		newMigrateCmd(opts),
		newResetUserCmd(opts),
	)
	return root
}

// withApp loads configuration, opens the application, applies pending
// migrations and runs fn.
func withApp(ctx context.Context, opts options, fn func(ctx context.Context, cfg *config.Config, a *app) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(opts.stderr, cfg.LogLevel)
	a, err := opts.open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close database", "err", err)
		}
	}()
	if err := a.db.Migrate(ctx); err != nil {
		return err
	}
	return fn(ctx, cfg, a)
}

func newServeCmd(opts options) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, opts, func(ctx context.Context, cfg *config.Config, a *app) error {
				if port != "" {
					cfg.Port = port
				}
				return serve(ctx, cfg, a)
			})
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, a *app) error {
	h, err := handler.NewHandler(a.agent, a.profiles, a.logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

type conversationFlags struct {
	file     string
	messages []string
	userID   int64
	noRAG    bool
}

func (f *conversationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", `JSON array of {"role","content"} messages ("-" reads stdin)`)
	cmd.Flags().StringArrayVarP(&f.messages, "message", "m", nil, "User message appended after --file (repeatable)")
	cmd.Flags().Int64VarP(&f.userID, "user", "u", 0, "User ID (0 for an anonymous conversation)")
	cmd.Flags().BoolVar(&f.noRAG, "no-rag", false, "Disable document retrieval")
}

func (f *conversationFlags) userPtr() *int64 {
	if f.userID <= 0 {
		return nil
	}
	id := f.userID
	return &id
}

func (f *conversationFlags) useRAG() *bool {
	v := !f.noRAG
	return &v
}

func newChatCmd(opts options) *cobra.Command {
	var (
		flags  conversationFlags
		topic  string
		noInfo bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run one response turn over a conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			messages, err := readMessages(opts.stdin, flags.file, flags.messages)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, _ *config.Config, a *app) error {
				useInfo := !noInfo
				out, err := a.agent.GenerateResponse(ctx, usecase.ChatInput{
					Messages: messages,
					UserID:   flags.userPtr(),
					Topic:    topic,
					UseInfo:  &useInfo,
					UseRAG:   flags.useRAG(),
				})
				if err != nil {
					return err
				}
				result := chatResult{RunID: out.RunID, Response: out.Response, Notice: out.Notice}
				if out.State != nil {
					result.Severity = out.State.SeverityRate
					result.Topic = out.State.Topic
					result.Interrupted = out.State.Interrupted
					result.Trace = out.State.Trace
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&topic, "topic", "", "Skip topic classification (ask, update, update_ask)")
	cmd.Flags().BoolVar(&noInfo, "no-info", false, "Do not load or save the user profile")
	return cmd
}

type chatResult struct {
	RunID       string       `json:"runId"`
	Response    string       `json:"response"`
	Notice      string       `json:"notice,omitempty"`
	Severity    int          `json:"severity"`
	Topic       domain.Topic `json:"topic"`
	Interrupted bool         `json:"interrupted"`
	Trace       []string     `json:"trace"`
}

func newSummaryCmd(opts options) *cobra.Command {
	var flags conversationFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize a conversation and store it for the user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			messages, err := readMessages(opts.stdin, flags.file, flags.messages)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, _ *config.Config, a *app) error {
				out, err := a.agent.GenerateSummary(ctx, usecase.SummaryInput{
					Messages: messages,
					UserID:   flags.userPtr(),
					UseRAG:   flags.useRAG(),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), struct {
					RunID string `json:"runId"`
					domain.HealthSummary
					Fallback bool `json:"fallback"`
				}{out.RunID, out.Summary, out.Fallback})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMigrateCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(_ context.Context, cfg *config.Config, _ *app) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Database.Driver)
				return err
			})
		},
	}
}

func newResetUserCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-user <user-id>",
		Short: "Delete a user and every stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, _ *config.Config, a *app) error {
				if err := a.profiles.ResetUser(ctx, userID); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "user %d reset\n", userID)
				return err
			})
		},
	}
}

// readMessages loads the conversation from file and appends extra as user
// turns.
func readMessages(stdin io.Reader, file string, extra []string) ([]domain.ConversationMessage, error) {
	var messages []domain.ConversationMessage
	if file != "" {
		var (
			raw []byte
			err error
		)
		if file == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}
		if err := json.Unmarshal(raw, &messages); err != nil {
			return nil, fmt.Errorf("parse messages: %w", err)
		}
	}
	for _, m := range extra {
		if strings.TrimSpace(m) == "" {
			continue
		}
		messages = append(messages, domain.ConversationMessage{Role: domain.RoleUser, Content: m})
	}
	if len(messages) == 0 {
		return nil, errors.New("no messages: use --file or --message")
	}
	return messages, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
