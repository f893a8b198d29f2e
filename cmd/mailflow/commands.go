package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mailcommand "github.com/kdevda/go-mailflow/command"
	"github.com/kdevda/go-mailflow/core"
	"github.com/kdevda/go-mailflow/httpapi"
	"github.com/spf13/cobra"
)

type cli struct {
	settings settings
	stderr   io.Writer
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "mailflow",
		Short:         "Send transactional email and track delivery events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadSettings(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			c.settings = loaded
			c.stderr = cmd.ErrOrStderr()
			return nil
		},
	}
	persistent := root.PersistentFlags()
	persistent.String("db-driver", driverSQLite, "database driver: sqlite3|postgres (env MAILFLOW_DB_DRIVER)")
	persistent.String("db-dsn", "", "database dsn (env MAILFLOW_DB_DSN)")
	persistent.String("log-format", "json", "log format: json|text (env MAILFLOW_LOG_FORMAT)")
	persistent.String("log-level", "info", "log level (env MAILFLOW_LOG_LEVEL)")

	root.AddCommand(c.serveCommand(), c.sendCommand(), c.configCommand(), c.migrateCommand())
	return root
}

func (c *cli) open(ctx context.Context, migrate bool) (*app, error) {
	return openApp(ctx, c.settings, c.stderr, appOptions{migrate: migrate})
}

func (c *cli) serveCommand() *cobra.Command {
	var (
		addr        string
		autoMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and webhook receiver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				c.settings.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.open(ctx, autoMigrate)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.runtime.Service.Config()
			server := &http.Server{
				Addr: c.settings.HTTPAddr,
				Handler: httpapi.NewRouter(httpapi.Options{
					Webhooks:            a.runtime.Webhooks,
					Mailer:              a.runtime.Facade,
					Metrics:             a.metrics.Handler(),
					Health:              a.Ping,
					Logger:              a.logger.GetLogger("httpapi"),
					MaxWebhookBodyBytes: cfg.MaxWebhookBodyBytes,
					RequestTimeout:      cfg.SendTimeout() + cfg.StoreTimeout(),
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", server.Addr, "providers", a.runtime.Webhooks.Providers())
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), c.settings.ShutdownTimeout)
			defer cancel()
			a.logger.Info("http server shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (env MAILFLOW_HTTP_ADDR)")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

type sendOutput struct {
	Success           bool            `json:"success"`
	MessageID         string          `json:"messageId"`
	Status            string          `json:"status"`
	Persisted         bool            `json:"persisted"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	ProviderResponse  string          `json:"providerResponse,omitempty"`
	Error             string          `json:"error,omitempty"`
}

func (c *cli) sendCommand() *cobra.Command {
	var (
		draft   core.MessageDraft
		attach  []string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one email through the configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attachments, err := parseAttachments(attach)
			if err != nil {
				return err
			}
			draft.Attachments = attachments

			a, err := c.open(cmd.Context(), migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			result, sendErr := a.runtime.Facade.SendEmail(cmd.Context(), draft)
			out := sendOutput{
				Success:           result.Success,
				MessageID:         result.Message.ID,
				Status:            string(result.Message.Status),
				Persisted:         result.Persisted,
				ProviderMessageID: result.ProviderMessageID,
				ProviderResponse:  string(result.ProviderResponse),
				Error:             result.Error,
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return sendErr
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&draft.From, "from", "", "sender; defaults to EMAIL_FROM_NAME <EMAIL_FROM_ADDRESS>")
	flags.StringSliceVar(&draft.To, "to", nil, "recipient (repeatable)")
	flags.StringSliceVar(&draft.CC, "cc", nil, "cc recipient (repeatable)")
	flags.StringSliceVar(&draft.BCC, "bcc", nil, "bcc recipient (repeatable)")
	flags.StringSliceVar(&draft.ReplyTo, "reply-to", nil, "reply-to address (repeatable)")
	flags.StringVar(&draft.Subject, "subject", "", "subject line")
	flags.StringVar(&draft.Body, "body", "", "html body")
	flags.StringVar(&draft.Text, "text", "", "plain text body")
	flags.StringSliceVar(&attach, "attach", nil, "attachment as path or filename=path (repeatable)")
	flags.BoolVar(&migrate, "migrate", false, "apply pending migrations first")
	return cmd
}

// parseAttachments records attachment references; file content is never read.
func parseAttachments(values []string) ([]core.Attachment, error) {
	out := make([]core.Attachment, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		name, path, found := strings.Cut(value, "=")
		if !found {
			path = name
			name = filepath.Base(path)
		}
		if strings.TrimSpace(name) == "" || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("mailflow: invalid attachment %q", value)
		}
		out = append(out, core.Attachment{Filename: strings.TrimSpace(name), Path: strings.TrimSpace(path)})
	}
	return out, nil
}

func (c *cli) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write stored configuration entries",
	}

	var (
		secret  bool
		encrypt bool
		unset   bool
	)
	set := &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Upsert a configuration entry",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := mailcommand.SetConfigEntryMessage{Key: args[0], Secret: secret, Encrypt: encrypt}
			switch {
			case unset:
				if len(args) > 1 {
					return fmt.Errorf("mailflow: --unset does not take a value")
				}
			case len(args) == 2:
				value := args[1]
				msg.Value = &value
			default:
				return fmt.Errorf("mailflow: a value or --unset is required")
			}

			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.runtime.Facade.SetConfigEntry(cmd.Context(), msg); err != nil {
				return err
			}
			view, err := a.runtime.Facade.GetConfigEntry(cmd.Context(), msg.Key)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
	set.Flags().BoolVar(&secret, "secret", false, "redact the value on display")
	set.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt the value with MAILFLOW_APP_KEY")
	set.Flags().BoolVar(&unset, "unset", false, "store a null value")

	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Show a configuration entry with secrets redacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.runtime.Facade.GetConfigEntry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}

	cmd.AddCommand(set, get)
	return cmd
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			a.logger.Info("migrations applied", "driver", c.settings.DBDriver)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
