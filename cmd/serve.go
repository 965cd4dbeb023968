package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apexswarm/leadgen/internal/intake"
	"github.com/apexswarm/leadgen/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for lead submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		// Bounds in-flight pipeline runs across all webhook requests; excess
		// submissions wait rather than being rejected.
		maxInFlight := cfg.Pipeline.MaxConcurrent
		if maxInFlight <= 0 {
			maxInFlight = 5
		}
		sem := make(chan struct{}, maxInFlight)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/webhook/lead", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Handle   string `json:"handle"`
				Platform string `json:"platform"`
				Text     string `json:"text"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			var candidates []intake.Candidate
			if body.Handle != "" {
				cand, ok := intake.ParseCandidate(body.Handle, body.Platform)
				if !ok {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed handle"})
					return
				}
				candidates = []intake.Candidate{cand}
			} else {
				candidates = intake.ExtractCandidates(body.Text)
			}
			if len(candidates) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no valid handles in request"})
				return
			}

			// Accept and process asynchronously: outreach can take minutes.
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = model.LeadID(c.Platform, c.Handle)
			}
			for _, c := range candidates {
				go func() {
					sem <- struct{}{}
					defer func() { <-sem }()

					pctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), 15*time.Minute)
					defer cancel()
					lead, err := intake.Resolve(pctx, e.store, c, model.SourceEvent)
					if err != nil {
						zap.L().Error("webhook resolve failed", zap.String("handle", c.Handle), zap.Error(err))
						return
					}
					if _, err := e.orch.Process(pctx, lead); err != nil {
						zap.L().Error("webhook processing failed", zap.String("lead_id", lead.ID), zap.Error(err))
					}
				}()
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(candidates), "lead_ids": ids})
		})

		r.Get("/leads", func(w http.ResponseWriter, req *http.Request) {
			leads, err := listLeads(req.Context(), e, req.URL.Query().Get("status"))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, leads)
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", servePort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("webhook server listening", zap.Int("port", servePort))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "serve")
			}
			return nil
		})

		// Optional AMQP intake alongside the HTTP server.
		if cfg.Queue.URL != "" {
			consumer := intake.NewConsumer(cfg.Queue.URL, cfg.Queue.QueueName, e.store, e.orch, zap.L())
			g.Go(func() error {
				return consumer.Run(gctx)
			})
		}

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP listen port")
	rootCmd.AddCommand(serveCmd)
}
