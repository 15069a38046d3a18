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

package cla

import (
	"context"
	"sort"

	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type OpenPullRequestLister interface {
	ListOpen(ctx context.Context, repo types.Repo) ([]types.OpenPullRequest, error)
}

// Sweeper re-checks every open pull request of a repository.
type Sweeper struct {
	lister      OpenPullRequestLister
	checker     Checker
	concurrency int
	logger      *zap.Logger
}

func NewSweeper(lister OpenPullRequestLister, checker Checker, concurrency int, logger *zap.Logger) *Sweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sweeper{lister: lister, checker: checker, concurrency: concurrency, logger: logger}
}

// Sweep only fails when the open pull requests cannot be listed. A pull request that cannot be
// checked gets an entry with Error set and the sweep carries on. Entries are ordered by number.
func (s *Sweeper) Sweep(ctx context.Context, repo types.Repo) ([]types.SweepEntry, error) {
	pulls, err := s.lister.ListOpen(ctx, repo)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sweeping open pull requests", zap.Stringer("repo", repo), zap.Int("count", len(pulls)))

	report := make([]types.SweepEntry, len(pulls))
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, pr := range pulls {
		i, pr := i, pr
		g.Go(func() error {
			entry := types.SweepEntry{Number: pr.Number, Sha: pr.Sha, WaitingFor: []string{}}
			verdict, checkErr := s.checker.CheckAndSet(ctx, repo, pr.Number, pr.Sha)
			if checkErr != nil {
				s.logger.Error("sweep entry failed",
					zap.Stringer("repo", repo),
					zap.Int("number", pr.Number),
					zap.Error(checkErr),
				)
				entry.Error = checkErr.Error()
			} else {
				entry.Signed = verdict.Compliant
				entry.WaitingFor = verdict.Waiting
			}
			report[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report, func(a, b int) bool {
		return report[a].Number < report[b].Number
	})
	return report, nil
}
