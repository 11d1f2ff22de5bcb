package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/routes"
	"device_inventory_tool/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var rootCmd = &cobra.Command{
	Use:           "device-inventory",
	Short:         "School device inventory backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd 启动 HTTP 服务与可选的清理定时任务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var purgeDays int

// purgeCmd 手动执行数据保护清理
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete students and contracts older than N days",
	Long: `Delete students (with their assignments and contracts) and unlinked or
historical contracts created before now minus --older-than-days. Students
holding an active assignment and contracts linked to one are kept.

Without --yes only the counts are printed.`,
	RunE: runPurge,
}

var purgeYes bool

var issueUsername string

// issueSessionCmd 为管理员签发会话 token（首次部署引导）
var issueSessionCmd = &cobra.Command{
	Use:   "issue-session",
	Short: "Create the admin account if needed and print a session token",
	RunE:  runIssueSession,
}

func init() {
	purgeCmd.Flags().IntVar(&purgeDays, "older-than-days", 0, "retention period in days (required)")
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "actually delete instead of printing a preview")
	_ = purgeCmd.MarkFlagRequired("older-than-days")

	issueSessionCmd.Flags().StringVar(&issueUsername, "username", "", "admin username, must be listed in ADMIN_EMAILS")
	_ = issueSessionCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(serveCmd, purgeCmd, issueSessionCmd)
}

func setup() (*app.App, error) {
	cfg := app.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return nil, err
	}
	return a, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	s := routes.RegisterRoutes(a.Router, a)

	job := &scheduler.RetentionJob{Repo: s.Repo, Locks: s.Locks, Days: a.Config.RetentionDays, Log: a.Log}
	c, err := scheduler.StartRetentionCron(a.Config.RetentionCron, job)
	if err != nil {
		return err
	}
	if c != nil {
		defer func() { <-c.Stop().Done() }()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.Log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runPurge(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	repo := db.NewRepo(a.DB)
	threshold, err := repo.ThresholdFor(purgeDays)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if !purgeYes {
		p, err := repo.PreviewPurge(ctx, threshold)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "would delete (created before %s): students=%d assignments=%d contracts=%d\nrerun with --yes to delete\n",
			p.Threshold.Format(time.RFC3339), p.Students, p.Assignments, p.Contracts)
		return nil
	}
	counts, err := repo.PurgeOlderThan(ctx, threshold)
	if err != nil {
		return err
	}
	detail := fmt.Sprintf("%+v", *counts)
	if _, err := repo.LogAction(ctx, db.Actor{Username: "cli"}, db.ActionPurge, fmt.Sprint(purgeDays), &detail); err != nil {
		a.Log.Warn("audit log", zap.Error(err))
	}
	a.Log.Info("retention purge",
		zap.Time("threshold", counts.Threshold),
		zap.Int64("students", counts.Students),
		zap.Int64("assignments", counts.Assignments),
		zap.Int64("contracts", counts.Contracts),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "deleted: students=%d assignments=%d contracts=%d\n",
		counts.Students, counts.Assignments, counts.Contracts)
	return nil
}

func runIssueSession(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	issued, err := app.BootstrapAdmin(cmd.Context(), a.Config, db.NewRepo(a.DB), a.AppSessions(), issueUsername, a.Log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user:  %s (%s)\ntoken: %s\nuse:   Authorization: Bearer %s\n",
		issued.Username, issued.UserID, issued.Token, issued.Token)
	return nil
}
