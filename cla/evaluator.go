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

// Package cla decides whether the authors of a pull request are covered by the contributor
// license agreement and reports the result as a commit status.
package cla

import (
	"context"
	"fmt"

	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
)

// TrustOracle reports whether a login is excused from signing for a repository.
type TrustOracle interface {
	IsExempt(ctx context.Context, login string, repo types.Repo) (bool, error)
}

// Registry reports whether a login has a signature on record.
type Registry interface {
	HasSigned(ctx context.Context, login string) (bool, error)
}

type Evaluator struct {
	oracle     TrustOracle
	registry   Registry
	failClosed bool
	logger     *zap.Logger
}

// NewEvaluator builds an Evaluator. With failClosed set, an author whose exemption lookup fails is
// treated as not exempt and must have signed; otherwise the lookup error aborts the evaluation.
func NewEvaluator(oracle TrustOracle, registry Registry, failClosed bool, logger *zap.Logger) *Evaluator {
	return &Evaluator{oracle: oracle, registry: registry, failClosed: failClosed, logger: logger}
}

// Evaluate checks every author in order and never stops at the first unsigned one, so the
// verdict lists everyone still waiting to sign.
func (e *Evaluator) Evaluate(ctx context.Context, pr types.PullRequestContext) (verdict types.ComplianceVerdict, err error) {
	waiting := []string{}
	for _, author := range pr.Authors {
		var exempt bool
		exempt, err = e.oracle.IsExempt(ctx, author, pr.Repo)
		if err != nil {
			if !e.failClosed {
				return types.ComplianceVerdict{}, fmt.Errorf("checking exemption for %s: %w", author, err)
			}
			e.logger.Warn("exemption check failed, signature required",
				zap.String("login", author),
				zap.Stringer("repo", pr.Repo),
				zap.Error(err),
			)
			exempt = false
		}
		if exempt {
			continue
		}

		var signed bool
		if signed, err = e.registry.HasSigned(ctx, author); err != nil {
			return types.ComplianceVerdict{}, fmt.Errorf("checking signature for %s: %w", author, err)
		}
		if signed {
			e.logger.Debug("author has already signed", zap.String("login", author))
			continue
		}
		e.logger.Debug("author hasn't signed yet", zap.String("login", author))
		waiting = append(waiting, author)
	}

	verdict = types.ComplianceVerdict{
		Compliant:    len(waiting) == 0 && len(pr.Unattributed) == 0,
		Waiting:      waiting,
		Unattributed: pr.Unattributed,
	}
	e.logger.Info("pull request evaluated",
		zap.Stringer("repo", pr.Repo),
		zap.Int("number", pr.Number),
		zap.Bool("compliant", verdict.Compliant),
		zap.Strings("waiting", waiting),
		zap.Int("unattributed", len(pr.Unattributed)),
	)
	return verdict, nil
}
