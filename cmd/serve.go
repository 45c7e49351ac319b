package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/pkg/overpass"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for discovery requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		source := overpass.NewClient(
			overpass.WithBaseURL(cfg.Overpass.BaseURL),
			overpass.WithTimeout(time.Duration(cfg.Overpass.TimeoutSecs)*time.Second),
		)
		disc := pipeline.NewDiscovery(source, st, pipeline.DiscoveryOpts{
			Concurrency: cfg.Discovery.Concurrency,
			RateLimit:   rate.Limit(cfg.Discovery.RateLimit),
			AreaTimeout: time.Duration(cfg.Discovery.AreaTimeoutSecs) * time.Second,
		})

		mux := buildMux(ctx, disc)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type discoveryRunner interface {
	Run(ctx context.Context, areas []string) (*pipeline.Report, error)
}

func buildMux(ctx context.Context, disc discoveryRunner) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /webhook/discover", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Areas []string `json:"areas"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if len(req.Areas) == 0 {
			http.Error(w, `{"error":"areas is required"}`, http.StatusBadRequest)
			return
		}

		// Run discovery asynchronously
		go func() {
			if disc == nil {
				return
			}
			report, err := disc.Run(ctx, req.Areas)
			if err != nil {
				zap.L().Error("webhook discovery failed",
					zap.Strings("areas", req.Areas),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook discovery complete",
				zap.String("run_id", report.RunID),
				zap.Int64("inserted", report.Inserted),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "accepted",
			"areas":  req.Areas,
		})
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
