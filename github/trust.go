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

package github

import (
	"context"
	"strings"

	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
)

// ExemptionCache remembers exemption decisions. found is false on a miss.
type ExemptionCache interface {
	Get(ctx context.Context, key string) (exempt bool, found bool, err error)
	Set(ctx context.Context, key string, exempt bool) error
}

// TrustOracle decides whether a login may skip the CLA for a repository: members of the
// trusted organization and collaborators of the repository are exempt.
type TrustOracle struct {
	organizations OrganizationsService
	repositories  RepositoriesService
	trustedOrg    string
	cache         ExemptionCache
	logger        *zap.Logger
}

// NewTrustOracle builds an oracle. An empty trustedOrg skips the membership check and a nil
// cache disables caching.
func NewTrustOracle(organizations OrganizationsService, repositories RepositoriesService, trustedOrg string, cache ExemptionCache, logger *zap.Logger) *TrustOracle {
	return &TrustOracle{
		organizations: organizations,
		repositories:  repositories,
		trustedOrg:    trustedOrg,
		cache:         cache,
		logger:        logger,
	}
}

func exemptionKey(login string, repo types.Repo) string {
	return "clam:exempt:" + strings.ToLower(repo.String()) + ":" + strings.ToLower(login)
}

func (o *TrustOracle) IsExempt(ctx context.Context, login string, repo types.Repo) (bool, error) {
	key := exemptionKey(login, repo)
	if o.cache != nil {
		exempt, found, err := o.cache.Get(ctx, key)
		if err != nil {
			o.logger.Warn("exemption cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return exempt, nil
		}
	}

	exempt, err := o.lookup(ctx, login, repo)
	if err != nil {
		return false, err
	}

	if o.cache != nil {
		if err = o.cache.Set(ctx, key, exempt); err != nil {
			o.logger.Warn("exemption cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return exempt, nil
}

// lookup checks membership before collaborator access and stops at the first positive answer.
func (o *TrustOracle) lookup(ctx context.Context, login string, repo types.Repo) (bool, error) {
	if o.trustedOrg != "" {
		isMember, resp, err := o.organizations.IsMember(ctx, o.trustedOrg, login)
		if err != nil {
			return false, newUpstreamError("check organization membership", resp, err)
		}
		if isMember {
			o.logger.Info("author is in trusted org; CLA not required",
				zap.String("login", login),
				zap.String("org", o.trustedOrg),
			)
			return true, nil
		}
		o.logger.Debug("author is not in trusted org", zap.String("login", login), zap.String("org", o.trustedOrg))
	}

	isCollaborator, resp, err := o.repositories.IsCollaborator(ctx, repo.Owner, repo.Name, login)
	if err != nil {
		return false, newUpstreamError("check repository collaborator", resp, err)
	}
	if isCollaborator {
		o.logger.Debug("author has push access; CLA not required",
			zap.String("login", login),
			zap.Stringer("repo", repo),
		)
	}
	return isCollaborator, nil
}
