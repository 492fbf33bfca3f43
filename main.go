package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tournevent/carriersync/internal/graphql"
	"github.com/tournevent/carriersync/internal/server"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/internal/webhook"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "carriersync",
	Short:   "R8Connect Shopify carrier service integration",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the settings API and webhook server",
	RunE:  runServe,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-apply the stored carrier service settings of one shop",
	RunE:  runReconcile,
}

var reconcileAllCmd = &cobra.Command{
	Use:   "reconcile-all",
	Short: "Re-apply the stored carrier service settings of every enabled shop",
	RunE:  runReconcileAll,
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate the carrier service of one shop",
	RunE:  runDeactivate,
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete the carrier service of one shop and disable its settings",
	RunE:  runRemove,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage shop sessions",
}

var sessionSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store an admin API access token for a shop",
	RunE:  runSessionSet,
}

func init() {
	for _, cmd := range []*cobra.Command{reconcileCmd, deactivateCmd, removeCmd, sessionSetCmd} {
		cmd.Flags().String("shop", "", "shop domain, e.g. example.myshopify.com")
		cmd.MarkFlagRequired("shop")
	}
	sessionSetCmd.Flags().String("token", "", "admin API access token")
	sessionSetCmd.Flags().String("scope", "write_shipping", "granted scopes, comma separated")
	sessionSetCmd.Flags().String("id", "", "session id (default: random)")
	sessionSetCmd.MarkFlagRequired("token")

	sessionCmd.AddCommand(sessionSetCmd)
	rootCmd.AddCommand(serveCmd, reconcileCmd, reconcileAllCmd, deactivateCmd, removeCmd, sessionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if a.cfg.ShopifyAPISecret == "" {
		a.logger.Warn("SHOPIFY_API_SECRET is not set, every webhook will be rejected")
	}

	a.logger.Info("Starting carrier service integration",
		zap.Int("port", a.cfg.Port),
		zap.String("version", a.cfg.Version),
		zap.String("db_driver", a.cfg.DBDriver),
		zap.Bool("shopify_mock", a.cfg.ShopifyUseMock),
	)

	resolver := graphql.NewResolver(a.settings, a.logger, a.metrics)
	webhooks := webhook.NewHandler(a.cfg.ShopifyAPISecret, a.sessions, a.settings, a.logger, a.metrics)

	// Start HTTP server
	srv := server.New(server.Config{Port: a.cfg.Port}, resolver, webhooks, a.db, a.logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	shop, _ := cmd.Flags().GetString("shop")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	cfg, err := a.settings.Reconcile(ctx, shop)
	if err != nil {
		return fmt.Errorf("reconciling %s: %w", shop, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", cfg.Shop, cfg.SyncStatus, cfg.CarrierServiceID)
	return nil
}

func runReconcileAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	outcomes, err := a.settings.ReconcileAll(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tfailed\t%v\n", o.Shop, o.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", o.Shop, o.Config.SyncStatus, o.Config.CarrierServiceID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d shops failed to reconcile", failed, len(outcomes))
	}
	return nil
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	shop, _ := cmd.Flags().GetString("shop")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	cfg, err := a.settings.Deactivate(ctx, shop)
	if err != nil {
		return fmt.Errorf("deactivating %s: %w", shop, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", cfg.Shop, cfg.SyncStatus)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	shop, _ := cmd.Flags().GetString("shop")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	cfg, err := a.settings.Remove(ctx, shop)
	if err != nil {
		return fmt.Errorf("removing carrier service of %s: %w", shop, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", cfg.Shop, cfg.SyncStatus)
	return nil
}

func runSessionSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	shop, _ := cmd.Flags().GetString("shop")
	token, _ := cmd.Flags().GetString("token")
	scope, _ := cmd.Flags().GetString("scope")
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.sessions.Put(ctx, store.Session{ID: id, Shop: shop, AccessToken: token, Scope: scope}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored session %s for %s\n", id, shop)
	return nil
}
