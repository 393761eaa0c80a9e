// Copyright 2025 Joseph Cumines
//
// Command tree

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/config"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/server"
	"github.com/joeycumines/xcodebuild-mcp/internal/transport"
	"github.com/spf13/cobra"
)

// errToolFailed signals an error envelope that was already printed.
var errToolFailed = errors.New("tool reported an error")

// shutdownTimeout bounds stopping log captures on exit.
const shutdownTimeout = 10 * time.Second

// app holds the process streams and the seams tests replace.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// environ, when set, replaces the process environment for config.
	environ map[string]string
	// deps, when set, replaces the host collaborators.
	deps *plugin.Deps
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.environ != nil {
		return config.LoadEnv(a.environ)
	}
	return config.Load()
}

func (a *app) newServer(cfg *config.Config, metrics *transport.MetricsRegistry) (*server.MCPServer, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return server.NewMCPServer(cfg, server.Options{
		Version: version,
		Logger:  slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})),
		Metrics: metrics,
		Deps:    a.deps,
	})
}

func (a *app) rootCommand() *cobra.Command {
	serve := a.serveCommand()
	root := &cobra.Command{
		Use:   "xcodebuild-mcp",
		Short: "MCP server for Xcode builds, simulators, devices and UI automation",
		Long: "xcodebuild-mcp exposes xcodebuild, simctl, devicectl and axe as MCP tools.\n" +
			"Without a subcommand it serves MCP over the configured transport.",
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(serve)
	root.AddCommand(a.toolsCommand())
	root.AddCommand(a.callCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", server.ServerName, version)
			return err
		},
	})
	return root
}

func (a *app) serveCommand() *cobra.Command {
	var (
		transportName string
		address       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio or HTTP/SSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("transport") {
				cfg.Transport = config.TransportType(transportName)
			}
			if cmd.Flags().Changed("http-address") {
				cfg.HTTPAddress = address
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&transportName, "transport", string(config.TransportStdio), "Transport: stdio or sse (overrides MCP_TRANSPORT)")
	cmd.Flags().StringVar(&address, "http-address", "", "HTTP listen address (overrides MCP_HTTP_ADDRESS)")
	return cmd
}

func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	metrics := transport.NewMetricsRegistry()
	srv, err := a.newServer(cfg, metrics)
	if err != nil {
		return err
	}

	var tr transport.Transport
	switch cfg.Transport {
	case config.TransportHTTP:
		tr = transport.NewHTTPTransport(&transport.HTTPTransportConfig{
			Address:           cfg.HTTPAddress,
			SocketPath:        cfg.HTTPSocketPath,
			CORSOrigin:        cfg.CORSOrigin,
			APIKey:            cfg.APIKey,
			TLSCertFile:       cfg.TLSCertFile,
			TLSKeyFile:        cfg.TLSKeyFile,
			RateLimit:         cfg.RateLimit,
			HeartbeatInterval: cfg.HeartbeatInterval,
			ReadTimeout:       cfg.HTTPReadTimeout,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			Metrics:           metrics,
		})
	default:
		tr = transport.NewStdioTransport(a.stdin, a.stdout)
	}

	serveErr := srv.Serve(ctx, tr)
	if ctx.Err() != nil {
		log.Println("Received shutdown signal, stopping...")
	}
	if err := tr.Close(); err != nil {
		log.Printf("Error closing transport: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	return serveErr
}

func (a *app) toolsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the enabled tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			srv, err := a.newServer(cfg, nil)
			if err != nil {
				return err
			}
			list := srv.Registry().List()
			out := cmd.OutOrStdout()

			if asJSON {
				type tool struct {
					Name        string         `json:"name"`
					Workflow    string         `json:"workflow"`
					Description string         `json:"description"`
					InputSchema map[string]any `json:"inputSchema"`
				}
				tools := make([]tool, 0, len(list))
				for _, p := range list {
					tools = append(tools, tool{p.Name, p.Workflow, p.Description, p.Params.Schema()})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tools)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tWORKFLOW\tREQUIRED")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%v\n", p.Name, p.Workflow, p.Params.Required())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print names, descriptions and input schemas as JSON")
	return cmd
}

func (a *app) callCommand() *cobra.Command {
	var (
		rawArgs  string
		argsFile string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its result",
		Long: "Invoke one tool with JSON arguments and print its content blocks.\n" +
			"The exit status is 1 when the tool reports an error.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := json.RawMessage(rawArgs)
			if argsFile != "" {
				data, err := os.ReadFile(argsFile)
				if err != nil {
					return fmt.Errorf("failed to read arguments: %w", err)
				}
				input = data
			}
			if !json.Valid(input) {
				return fmt.Errorf("arguments are not valid JSON: %s", input)
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			srv, err := a.newServer(cfg, nil)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			res, err := srv.CallTool(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
				return err
			}
			if res.IsError {
				return errToolFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&argsFile, "args-file", "", "Read tool arguments from a JSON file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw result envelope")
	cmd.MarkFlagsMutuallyExclusive("args", "args-file")
	return cmd
}

func printResult(w io.Writer, res *response.ToolResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, c := range res.Content {
		var err error
		switch c.Type {
		case "text":
			_, err = fmt.Fprintln(w, c.Text)
		default:
			_, err = fmt.Fprintf(w, "[%s %s, %d base64 bytes]\n", c.Type, c.MimeType, len(c.Data))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
