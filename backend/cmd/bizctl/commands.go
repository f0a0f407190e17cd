package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bizgraph-bot/backend/internal/agent"
	"bizgraph-bot/backend/internal/app"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/ledger"
	"bizgraph-bot/backend/internal/telegram"
	"bizgraph-bot/backend/pkg/config"
	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

// demoCatalog is loaded by `seed` when no file is given
var demoCatalog = []graph.ProductInput{
	{Name: "ortho kit", Price: 500, Description: "Orthodontic starter kit"},
	{Name: "bracket", Price: 120},
	{Name: "archwire", Price: 80},
	{Name: "elastic ligature", Price: 15},
}

// seedFile is the YAML layout accepted by `seed --file`
type seedFile struct {
	Products []struct {
		Name        string  `yaml:"name"`
		Price       float64 `yaml:"price"`
		Description string  `yaml:"description"`
	} `yaml:"products"`
}

// productAdder is the write surface `seed` needs
type productAdder interface {
	AddProduct(ctx context.Context, in graph.ProductInput) (*graph.Product, error)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bizctl",
		Short:        "Maintenance commands for the business graph bot",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return app.InitLogger(cfg)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			logger.Sync()
		},
	}

	cmd.AddCommand(schemaCmd(), seedCmd(), ledgerCmd(), askCmd())
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create Neo4j constraints and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			driver, err := graph.Connect(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
			if err != nil {
				return err
			}
			repo := graph.NewRepository(driver, cfg.Neo4j.Database)
			defer repo.Close()

			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a product catalog into the graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			products := demoCatalog
			if file != "" {
				loaded, err := loadSeed(file)
				if err != nil {
					return err
				}
				products = loaded
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			n, err := seedProducts(cmd.Context(), application.Graph, application.Profile, products)
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d products.\n", n, len(products))
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a products list (defaults to a demo catalog)")
	return cmd
}

// loadSeed reads products from a YAML seed file
func loadSeed(path string) ([]graph.ProductInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	out := make([]graph.ProductInput, 0, len(f.Products))
	for i, p := range f.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" || p.Price <= 0 {
			return nil, fmt.Errorf("seed file %s: product %d needs a name and a positive price", path, i+1)
		}
		out = append(out, graph.ProductInput{Name: name, Price: p.Price, Description: p.Description})
	}
	return out, nil
}

// seedProducts adds every product, continuing past failures
func seedProducts(ctx context.Context, repo productAdder, profile *config.Profile, products []graph.ProductInput) (int, error) {
	var (
		added int
		errs  []error
	)
	for _, p := range products {
		p.Name = profile.ResolveProduct(p.Name)
		if _, err := repo.AddProduct(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}

func ledgerCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the Postgres ledger mirror",
	}
	c.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply ledger migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.LedgerEnabled() {
				return apperrors.ErrLedgerUnavailable
			}
			if err := ledger.Migrate(cfg.Ledger.DSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ledger migrations applied.")
			return nil
		},
	})
	return c
}

func askCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one message through the agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			reply, err := application.Orchestrator.HandleMessage(cmd.Context(), agent.Request{
				UserID: userID,
				Text:   strings.Join(args, " "),
				Date:   time.Now().In(application.Profile.Location()),
			})
			if reply != nil {
				fmt.Fprintln(cmd.OutOrStdout(), telegram.StripHTML(reply.Text))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "User ID whose session memory to use")
	return cmd
}
