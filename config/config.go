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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/sonatype-nexus-community/clam/types"
)

const (
	EnvAddr               = "CLAM_ADDR"
	EnvDatabaseURL        = "DATABASE_URL"
	EnvMigrations         = "CLAM_MIGRATIONS"
	EnvGitHubToken        = "CLAM_GITHUB_TOKEN"
	EnvGhAppId            = "GH_APP_ID"
	EnvGhInstallId        = "GH_INSTALL_ID"
	EnvPemFile            = "CLA_PEM_FILE"
	EnvGitHubAPIURL       = "CLAM_GITHUB_API_URL"
	EnvGitHubClientId     = "CLAM_GITHUB_CLIENT_ID"
	EnvGitHubClientSecret = "CLAM_GITHUB_CLIENT_SECRET"
	EnvGitHubOrg          = "CLAM_GITHUB_ORG"
	EnvSignURL            = "CLAM_SIGN_URL"
	EnvStatusContext      = "CLAM_STATUS_CONTEXT"
	EnvWebhookSecret      = "CLAM_WEBHOOK_SECRET"
	EnvClaURL             = "CLA_URL"
	EnvAPITimeout         = "CLAM_API_TIMEOUT"
	EnvSweepConcurrency   = "CLAM_SWEEP_CONCURRENCY"
	EnvTrustFailurePolicy = "CLAM_TRUST_FAILURE_POLICY"
	EnvRedisAddr          = "CLAM_REDIS_ADDR"
	EnvRedisPassword      = "CLAM_REDIS_PASSWORD"
	EnvRedisDB            = "CLAM_REDIS_DB"
	EnvExemptionTTL       = "CLAM_EXEMPTION_TTL"
	EnvAdminToken         = "CLAM_ADMIN_TOKEN"
	EnvRecheckRepos       = "CLAM_RECHECK_REPOS"
	EnvDebug              = "CLAM_DEBUG"
)

const DefaultStatusContext = "ci/clam"

type TrustFailurePolicy string

const (
	// TrustFailClosed treats an author whose exemption lookup failed as not exempt.
	TrustFailClosed TrustFailurePolicy = "closed"
	// TrustFailPropagate aborts the evaluation when an exemption lookup fails.
	TrustFailPropagate TrustFailurePolicy = "propagate"
)

type Config struct {
	Addr             string
	DatabaseURL      string
	MigrateSourceURL string

	GitHubToken       string
	AppId             int64
	InstallId         int64
	PemFile           string
	GitHubAPIURL      string
	OAuthClientId     string
	OAuthClientSecret string

	TrustedOrg         string
	SignURL            string
	StatusContext      string
	WebhookSecret      string
	ClaURL             string
	APITimeout         time.Duration
	SweepConcurrency   int
	TrustFailurePolicy TrustFailurePolicy

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ExemptionTTL  time.Duration

	AdminToken   string
	RecheckRepos []types.Repo
	Debug        bool
}

// UsesGitHubApp reports whether API calls authenticate as a GitHub App installation
// rather than with a static token.
func (c Config) UsesGitHubApp() bool {
	return c.GitHubToken == "" && c.AppId != 0
}

// Load reads the optional env file and then the process environment. Every malformed
// value is reported, not just the first.
func Load(envFile string) (cfg Config, err error) {
	if envFile != "" {
		if loadErr := godotenv.Load(envFile); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", envFile, loadErr)
		}
	}

	var result *multierror.Error

	cfg = Config{
		Addr:               envDefault(EnvAddr, ":4200"),
		DatabaseURL:        os.Getenv(EnvDatabaseURL),
		MigrateSourceURL:   envDefault(EnvMigrations, "file://db/migrations"),
		GitHubToken:        os.Getenv(EnvGitHubToken),
		PemFile:            envDefault(EnvPemFile, "clam.pem"),
		GitHubAPIURL:       os.Getenv(EnvGitHubAPIURL),
		OAuthClientId:      os.Getenv(EnvGitHubClientId),
		OAuthClientSecret:  os.Getenv(EnvGitHubClientSecret),
		TrustedOrg:         os.Getenv(EnvGitHubOrg),
		SignURL:            os.Getenv(EnvSignURL),
		StatusContext:      envDefault(EnvStatusContext, DefaultStatusContext),
		WebhookSecret:      os.Getenv(EnvWebhookSecret),
		ClaURL:             os.Getenv(EnvClaURL),
		TrustFailurePolicy: TrustFailurePolicy(envDefault(EnvTrustFailurePolicy, string(TrustFailClosed))),
		RedisAddr:          os.Getenv(EnvRedisAddr),
		RedisPassword:      os.Getenv(EnvRedisPassword),
		AdminToken:         os.Getenv(EnvAdminToken),
	}

	if cfg.AppId, err = envInt64(EnvGhAppId); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.InstallId, err = envInt64(EnvGhInstallId); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.APITimeout, err = envDuration(EnvAPITimeout, 10*time.Second); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.ExemptionTTL, err = envDuration(EnvExemptionTTL, 5*time.Minute); err != nil {
		result = multierror.Append(result, err)
	}
	var concurrency int64
	if concurrency, err = envInt64(EnvSweepConcurrency); err != nil {
		result = multierror.Append(result, err)
	}
	cfg.SweepConcurrency = int(concurrency)
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	var redisDB int64
	if redisDB, err = envInt64(EnvRedisDB); err != nil {
		result = multierror.Append(result, err)
	}
	cfg.RedisDB = int(redisDB)

	if raw := os.Getenv(EnvDebug); raw != "" {
		if cfg.Debug, err = strconv.ParseBool(raw); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", EnvDebug, err))
		}
	}

	for _, name := range strings.Split(os.Getenv(EnvRecheckRepos), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		repo, parseErr := types.ParseRepo(name)
		if parseErr != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", EnvRecheckRepos, parseErr))
			continue
		}
		cfg.RecheckRepos = append(cfg.RecheckRepos, repo)
	}

	err = result.ErrorOrNil()
	return
}

// ValidateGitHub checks the settings needed to talk to the GitHub API and publish statuses.
func (c Config) ValidateGitHub() error {
	var result *multierror.Error
	if c.GitHubToken == "" && (c.AppId == 0 || c.InstallId == 0) {
		result = multierror.Append(result,
			fmt.Errorf("missing %s, or %s and %s", EnvGitHubToken, EnvGhAppId, EnvGhInstallId))
	}
	if c.SignURL == "" {
		result = multierror.Append(result, fmt.Errorf("missing %s environment variable", EnvSignURL))
	}
	switch c.TrustFailurePolicy {
	case TrustFailClosed, TrustFailPropagate:
	default:
		result = multierror.Append(result,
			fmt.Errorf("%s must be %q or %q, got %q", EnvTrustFailurePolicy, TrustFailClosed, TrustFailPropagate, c.TrustFailurePolicy))
	}
	return result.ErrorOrNil()
}

// ValidateDatabase checks the settings needed to reach the signatory registry.
func (c Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("missing %s environment variable", EnvDatabaseURL)
	}
	return nil
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt64(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
