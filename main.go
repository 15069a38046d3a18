//
// Copyright 2021-present Sonatype Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonatype-nexus-community/clam/config"
	"github.com/sonatype-nexus-community/clam/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	envFile string
	debug   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "clam",
		Short:        "Gate pull requests on a signed Contributor License Agreement",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "file of KEY=value settings loaded before the environment")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts), newMigrateCmd(opts), newSweepCmd(opts))
	return root
}

// setup loads configuration and builds the logger every subcommand needs.
func (o *rootOptions) setup() (cfg config.Config, logger *zap.Logger, err error) {
	if cfg, err = config.Load(o.envFile); err != nil {
		return
	}
	logger, err = newLogger(o.debug || cfg.Debug)
	return
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate the registry and serve the webhook and signing endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			if err = a.registry.MigrateDB(cfg.MigrateSourceURL); err != nil {
				return err
			}

			s, err := a.newServer()
			if err != nil {
				return err
			}
			e := s.newEcho()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
					logger.Error("shutdown", zap.Error(shutdownErr))
				}
			}()

			logger.Info("starting server", zap.String("addr", cfg.Addr), zap.String("statusContext", cfg.StatusContext))
			if err = e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			s.background.Wait()
			return nil
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply signatory registry migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			registry, sqlDB, err := openRegistry(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = sqlDB.Close()
			}()
			return registry.MigrateDB(cfg.MigrateSourceURL)
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep owner/repo...",
		Short: "Re-check every open pull request of the given repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repos := make([]types.Repo, 0, len(args))
			for _, arg := range args {
				repo, err := types.ParseRepo(arg)
				if err != nil {
					return err
				}
				repos = append(repos, repo)
			}

			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			reports := make(map[string][]types.SweepEntry, len(repos))
			for _, repo := range repos {
				report, sweepErr := a.sweeper.Sweep(cmd.Context(), repo)
				if sweepErr != nil {
					return fmt.Errorf("sweeping %s: %w", repo, sweepErr)
				}
				reports[repo.String()] = report
			}

			out, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
