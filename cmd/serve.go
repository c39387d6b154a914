package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for task management",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{env: env, runCtx: ctx}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", api.createTask)
			r.Get("/", api.listTasks)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", api.getTask)
				r.Post("/pause", api.pauseTask)
				r.Post("/resume", api.resumeTask)
				r.Post("/terminate", api.terminateTask)
				r.Post("/select", api.selectLinks)
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

type apiServer struct {
	env *appEnv
	// runCtx outlives individual requests; background workflow runs hang
	// off it so a finished HTTP request does not cancel them.
	runCtx context.Context
}

type createTaskRequest struct {
	Query      string   `json:"query"`
	City       string   `json:"city"`
	Province   string   `json:"province"`
	RadiusKm   int      `json:"radiusKm"`
	Section    string   `json:"section"`
	Steps      []string `json:"steps"`
	AutoSelect bool     `json:"autoSelect"`
	OwnerID    string   `json:"ownerId"`
}

func (s *apiServer) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	steps := req.Steps
	if len(steps) == 0 {
		steps = workflow.DefaultSteps()
	}
	for _, step := range steps {
		if !workflow.KnownStep(step) {
			writeError(w, http.StatusBadRequest, "unknown workflow step: "+step)
			return
		}
	}

	task := &model.Task{
		OwnerID: req.OwnerID,
		Query: model.QuerySpec{
			InitialQuery:       req.Query,
			SelectedPKDSection: req.Section,
			Location: model.Location{
				City:     req.City,
				Province: req.Province,
				RadiusKm: req.RadiusKm,
			},
		},
		WorkflowSteps: steps,
		AutoSelect:    req.AutoSelect,
	}
	if err := s.env.Store.CreateTask(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.runAsync(task.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": task.ID, "status": string(task.Status)})
}

func (s *apiServer) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := s.env.Store.ListTasks(r.Context(), store.TaskFilter{
		OwnerID: q.Get("owner"),
		Status:  model.TaskStatus(q.Get("status")),
		Limit:   50,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *apiServer) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.env.Store.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *apiServer) pauseTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.env.Store.Pause(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StatusPaused)})
}

func (s *apiServer) resumeTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.env.Store.Resume(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.runAsync(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *apiServer) terminateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.env.Store.Terminate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StatusTerminated)})
}

func (s *apiServer) selectLinks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	status, err := s.env.Store.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if status != model.StatusWaitingSelection {
		writeError(w, http.StatusConflict, "task is not waiting for selection")
		return
	}

	// Empty body accepts the full classified partition.
	var selection *model.ClassifiedLinks
	var body model.ClassifiedLinks
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		selection = &body
	}

	if err := s.env.Orchestrator.ApplySelection(r.Context(), id, selection); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.runAsync(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *apiServer) runAsync(taskID string) {
	go func() {
		if err := s.env.Orchestrator.Run(s.runCtx, taskID); err != nil {
			zap.L().Error("background run failed", zap.String("task", taskID), zap.Error(err))
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
