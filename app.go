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
	"database/sql"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sonatype-nexus-community/clam/cache"
	"github.com/sonatype-nexus-community/clam/cla"
	"github.com/sonatype-nexus-community/clam/config"
	"github.com/sonatype-nexus-community/clam/db"
	ourGithub "github.com/sonatype-nexus-community/clam/github"
	"github.com/sonatype-nexus-community/clam/oauth"
	"go.uber.org/zap"
	webhook "gopkg.in/go-playground/webhooks.v5/github"
)

// app holds the wired components shared by the serve and sweep commands.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	registry   *db.ClaDB
	ghClient   ourGithub.GHClient
	sweeper    *cla.Sweeper
	dispatcher *cla.Dispatcher
	closers    []func() error
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (*db.ClaDB, *sql.DB, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, nil, err
	}
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db.New(sqlDB, logger), sqlDB, nil
}

// newExemptionCache prefers Redis so every replica shares one cache, and falls back to an
// in-process cache otherwise.
func newExemptionCache(cfg config.Config, logger *zap.Logger) (ourGithub.ExemptionCache, func() error, error) {
	if cfg.RedisAddr == "" {
		logger.Debug("using in-memory exemption cache", zap.Duration("ttl", cfg.ExemptionTTL))
		return cache.NewMemoryCache(cache.MemoryCacheConfig{TTL: cfg.ExemptionTTL}), func() error { return nil }, nil
	}
	redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ExemptionTTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("using redis exemption cache", zap.String("addr", cfg.RedisAddr))
	return redisCache, redisCache.Close, nil
}

func newGitHubClient(cfg config.Config) (ourGithub.GHClient, error) {
	if err := cfg.ValidateGitHub(); err != nil {
		return ourGithub.GHClient{}, err
	}
	httpClient, err := ourGithub.NewAPIHTTPClient(cfg)
	if err != nil {
		return ourGithub.GHClient{}, err
	}
	creator := &ourGithub.GHCreator{BaseURL: cfg.GitHubAPIURL}
	return creator.NewClient(httpClient)
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	registry, sqlDB, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return
	}
	a.registry = registry
	a.closers = append(a.closers, sqlDB.Close)

	if a.ghClient, err = newGitHubClient(cfg); err != nil {
		return
	}

	exemptions, closeCache, err := newExemptionCache(cfg, logger)
	if err != nil {
		return
	}
	a.closers = append(a.closers, closeCache)

	oracle := ourGithub.NewTrustOracle(a.ghClient.Organizations, a.ghClient.Repositories, cfg.TrustedOrg, exemptions, logger)
	evaluator := cla.NewEvaluator(oracle, registry, cfg.TrustFailurePolicy == config.TrustFailClosed, logger)
	pipeline := cla.NewPipeline(
		ourGithub.NewAuthorResolver(a.ghClient.PullRequests, logger),
		evaluator,
		ourGithub.NewStatusPublisher(a.ghClient.Repositories, cfg.StatusContext, cfg.SignURL, logger),
	)
	a.sweeper = cla.NewSweeper(ourGithub.NewPullRequestLister(a.ghClient.PullRequests), pipeline, cfg.SweepConcurrency, logger)
	a.dispatcher = cla.NewDispatcher(pipeline, logger)
	return
}

func (a *app) newServer() (*server, error) {
	var opts []webhook.Option
	if a.cfg.WebhookSecret != "" {
		opts = append(opts, webhook.Options.Secret(a.cfg.WebhookSecret))
	} else {
		a.logger.Warn("webhook payloads are not authenticated, set " + config.EnvWebhookSecret)
	}
	hook, err := webhook.New(opts...)
	if err != nil {
		return nil, err
	}

	s := &server{
		logger:       a.logger,
		hook:         hook,
		dispatcher:   a.dispatcher,
		sweeper:      a.sweeper,
		registry:     a.registry,
		claText:      &claTextCache{url: a.cfg.ClaURL, client: &http.Client{Timeout: a.cfg.APITimeout}},
		adminToken:   a.cfg.AdminToken,
		recheckRepos: a.cfg.RecheckRepos,
	}
	if a.cfg.OAuthClientId != "" {
		s.oauth = oauth.CreateOAuth(a.cfg.OAuthClientId, a.cfg.OAuthClientSecret, a.cfg.GitHubAPIURL, &ourGithub.GHCreator{BaseURL: a.cfg.GitHubAPIURL})
	} else {
		a.logger.Info("sign-in endpoints disabled, set " + config.EnvGitHubClientId + " to enable them")
	}
	return s, nil
}

func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
