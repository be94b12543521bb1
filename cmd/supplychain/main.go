package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"supplychain/pkg/app/export"
	"supplychain/pkg/domain/model"
	"supplychain/pkg/domain/service"
	"supplychain/pkg/infrastructure/event"
	"supplychain/pkg/infrastructure/metrics"
	"supplychain/pkg/infrastructure/mysql"
	"supplychain/pkg/infrastructure/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  appID,
		Usage: "supply chain product custody service",
		Commands: []*cli.Command{
			{
				Name:   "service",
				Usage:  "serve the REST API",
				Action: withConfig(runService),
			},
			{
				Name:   "migrate",
				Usage:  "apply MySQL schema migrations",
				Action: withConfig(runMigrate),
			},
			{
				Name:  "roles",
				Usage: "administer role grants",
				Subcommands: []*cli.Command{
					{
						Name:      "grant",
						ArgsUsage: "<identity> <capability>",
						Action:    withConfig(runGrant),
					},
					{
						Name:      "revoke",
						ArgsUsage: "<identity> <capability>",
						Action:    withConfig(runRevoke),
					},
					{
						Name:      "list",
						ArgsUsage: "<identity>",
						Action:    withConfig(runListRoles),
					},
				},
			},
			{
				Name:  "export",
				Usage: "write an actor's ledger records as CSV to stdout",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "actor", Required: true},
				},
				Action: withConfig(runExport),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("supplychain failed")
	}
}

func withConfig(action func(ctx *cli.Context, c *config) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := parseEnv()
		if err != nil {
			return err
		}
		closeLog, err := setupLogging(c)
		if err != nil {
			return err
		}
		defer closeLog()
		return action(ctx, c)
	}
}

func runService(cliCtx *cli.Context, c *config) error {
	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedGrants(ctx, store.roles, c.RoleGrants); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return errors.Wrap(err, "register metrics")
	}

	bus := EventBus.New()
	if err := event.SubscribeLogger(bus, log.StandardLogger()); err != nil {
		return errors.Wrap(err, "subscribe logger")
	}
	if err := collector.Subscribe(bus); err != nil {
		return errors.Wrap(err, "subscribe metrics")
	}

	supplyChain := service.NewSupplyChainService(store, store.roles, event.NewBusDispatcher(bus))
	query := service.NewProductQueryService(store.ProductRepository(), store.HistoryRepository(), store.roles)
	router := transport.Router(supplyChain, query, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: c.ServeRESTAddress, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{"url": c.ServeRESTAddress, "storage": c.StorageDriver}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serve http")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMigrate(cliCtx *cli.Context, c *config) error {
	if c.StorageDriver != "mysql" {
		return errors.Errorf("migrations apply to the mysql driver only, got %q", c.StorageDriver)
	}
	store, err := mysql.Open(cliCtx.Context, c.MySQLDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func runGrant(cliCtx *cli.Context, c *config) error {
	return changeRole(cliCtx, c, func(ctx context.Context, s *storage, identity string, capability model.Capability) error {
		return s.roles.Grant(ctx, identity, capability)
	})
}

func runRevoke(cliCtx *cli.Context, c *config) error {
	return changeRole(cliCtx, c, func(ctx context.Context, s *storage, identity string, capability model.Capability) error {
		return s.roles.Revoke(ctx, identity, capability)
	})
}

func changeRole(cliCtx *cli.Context, c *config, change func(ctx context.Context, s *storage, identity string, capability model.Capability) error) error {
	if err := requirePersistentStorage(c); err != nil {
		return err
	}
	if cliCtx.NArg() != 2 {
		return errors.New("expected <identity> <capability>")
	}
	identity := cliCtx.Args().Get(0)
	capability, ok := model.ParseCapability(cliCtx.Args().Get(1))
	if !ok {
		return errors.Errorf("unknown capability %q", cliCtx.Args().Get(1))
	}

	store, err := openStorage(cliCtx.Context, c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := change(cliCtx.Context, store, identity, capability); err != nil {
		return err
	}
	log.WithFields(log.Fields{"identity": identity, "capability": capability, "command": cliCtx.Command.Name}).Info("role grants changed")
	return nil
}

func runListRoles(cliCtx *cli.Context, c *config) error {
	if cliCtx.NArg() != 1 {
		return errors.New("expected <identity>")
	}
	store, err := openStorage(cliCtx.Context, c)
	if err != nil {
		return err
	}
	defer store.Close()

	caps, err := store.roles.CapabilitiesOf(cliCtx.Context, cliCtx.Args().First())
	if err != nil {
		return err
	}
	for _, capability := range caps {
		fmt.Fprintln(cliCtx.App.Writer, capability)
	}
	return nil
}

func runExport(cliCtx *cli.Context, c *config) error {
	store, err := openStorage(cliCtx.Context, c)
	if err != nil {
		return err
	}
	defer store.Close()

	return export.ActorRecords(cliCtx.Context, store.HistoryRepository(), cliCtx.String("actor"), cliCtx.App.Writer)
}
