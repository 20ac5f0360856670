//go:build integration

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	governanceservice "instahelp/internal/governance/service"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/testutil/containers"
)

type GovernanceTxSuite struct {
	suite.Suite
	tx *governancePostgresTx
}

func TestGovernanceTxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(GovernanceTxSuite))
}

func (s *GovernanceTxSuite) SetupSuite() {
	db := containers.GetManager().GetPostgres(s.T()).DB
	s.tx = newGovernancePostgresTx(db, 0)
}

func (s *GovernanceTxSuite) run(ctx context.Context, ret error) error {
	return s.tx.RunInTx(ctx, id.ChangeID{}, func(context.Context, governanceservice.Store) error {
		return ret
	})
}

func (s *GovernanceTxSuite) TestPlainErrorIsInternal() {
	cause := errors.New("connection reset")
	err := s.run(context.Background(), cause)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, cause)
}

func (s *GovernanceTxSuite) TestCodedErrorPassesThrough() {
	err := s.run(context.Background(), dErrors.New(dErrors.CodeConflict, "already voted"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *GovernanceTxSuite) TestCancelledContextIsTimeout() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.run(ctx, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *GovernanceTxSuite) TestSuccessCommits() {
	s.NoError(s.run(context.Background(), nil))
}
