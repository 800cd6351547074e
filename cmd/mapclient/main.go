package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-map/internal/logging"
	"github.com/joeblew999/plat-map/internal/server"
)

// Options defines all CLI flags and env vars for the map client server.
// Flags: --host, --port, --data-dir, --templates-dir, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_TEMPLATES_DIR, SERVICE_LOG_LEVEL
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir      string `doc:"Directory for the endpoint store (empty keeps it in memory)" default:".data"`
	TemplatesDir string `doc:"Serve HTML fragments from this directory and enable reloading them (dev)"`
	LogLevel     string `doc:"Log level: debug, info, warn or error" default:"info"`
}

func newServer(opts *Options, log *zap.Logger) (*server.Server, error) {
	return server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		TemplatesDir: opts.TemplatesDir,
		Logger:       log,
	})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			log     *zap.Logger
			srv     *server.Server
			httpSrv *http.Server
		)

		hooks.OnStart(func() {
			var err error
			if log, err = logging.New(opts.LogLevel); err != nil {
				fatal("Error: %v", err)
			}
			defer log.Sync()

			if srv, err = newServer(opts, log); err != nil {
				log.Fatal("server init failed", zap.Error(err))
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			if opts.TemplatesDir != "" {
				fmt.Printf("  Frags:   %s (POST %s/api/v1/editor/templates/reload)\n", opts.TemplatesDir, baseURL)
			}
			fmt.Println()
			fmt.Printf("  Events:  %s/api/v1/editor/events\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := srv.LoadFirstEndpoint(context.Background()); err != nil {
				log.Warn("initial layer load failed", zap.Error(err))
			}

			httpSrv = &http.Server{Addr: addr, Handler: srv}
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("server error", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			if httpSrv == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
			if err := srv.Close(); err != nil {
				log.Warn("close", zap.Error(err))
			}
		})
	})

	cli.Root().Use = "mapclient"
	cli.Root().Short = "Map client for ArcGIS feature layers"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.DataDir = ""
			srv, err := newServer(opts, zap.NewNop())
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Run()
}
