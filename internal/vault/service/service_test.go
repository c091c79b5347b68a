package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"agentvault/internal/audit"
	"agentvault/internal/epoch"
	"agentvault/internal/vault/models"
	"agentvault/internal/vault/store"
	dErrors "agentvault/pkg/domain-errors"
	"agentvault/pkg/requestcontext"
)

const (
	owner   = models.Address("0xowner")
	agent   = models.Address("0xagent")
	allowed = models.Address("0x1111")
	denied  = models.Address("0x2222")
	unknown = models.Address("0x3333")
)

func sui(n float64) uint64 {
	return uint64(n * float64(models.MISTPerSUI))
}

// captureSink records audit entries synchronously for assertions.
type captureSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureSink) Emit(entry audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureSink) last() audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return audit.Entry{}
	}
	return c.entries[len(c.entries)-1]
}

type ServiceSuite struct {
	suite.Suite
	service *Service
	sink    *captureSink
	baseCtx context.Context
	vaultID uuid.UUID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// base is noon on a fixed day; epochs are 24h so base+24h lands in the next
// window.
var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func (s *ServiceSuite) SetupTest() {
	s.sink = &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = New(store.NewMemory(), epoch.NewClock(24*time.Hour), logger, WithAuditSink(s.sink))
	s.Require().NoError(err)

	s.baseCtx = requestcontext.WithTime(context.Background(), base)

	v, err := s.service.CreateVault(s.baseCtx, CreateVaultParams{
		Owner: owner,
		Agent: agent,
		Limits: models.Limits{
			MaxPerTx:         sui(10),
			MaxDaily:         sui(50),
			AutoApproveLimit: sui(5),
			MaxTxPerEpoch:    20,
		},
		InitialDeposit: sui(100),
	})
	s.Require().NoError(err)
	s.vaultID = v.ID

	s.Require().NoError(s.service.AddToAllowlist(s.baseCtx, s.vaultID, owner, allowed))
	s.Require().NoError(s.service.AddToDenylist(s.baseCtx, s.vaultID, owner, denied))
}

func (s *ServiceSuite) snapshot() *models.Vault {
	v, err := s.service.GetVault(s.baseCtx, s.vaultID)
	s.Require().NoError(err)
	return v
}

// at returns a context whose clock is offset from base.
func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), base.Add(offset))
}

// =============================================================================
// RequestTransfer: demo scenarios
// =============================================================================

func (s *ServiceSuite) TestDemoScenarios() {
	s.Run("small transfer to allowlisted executes", func() {
		receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(0.001))
		s.Require().NoError(err)
		s.Equal(audit.ResultExecuted, receipt.Result)
		s.NotEmpty(receipt.TxReference)
	})

	s.Run("over per-tx limit blocks", func() {
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(20))
		s.True(dErrors.HasCode(err, dErrors.CodeExceedsPerTxLimit))
	})

	s.Run("above auto-approve queues", func() {
		receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
		s.Require().NoError(err)
		s.Equal(audit.ResultQueued, receipt.Result)
		s.Equal(models.QueueExceedsAutoApprove, receipt.Reason)
	})

	s.Run("unknown recipient queues", func() {
		receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, unknown, sui(0.001))
		s.Require().NoError(err)
		s.Equal(audit.ResultQueued, receipt.Result)
		s.Equal(models.QueueRecipientNotAllowlisted, receipt.Reason)
	})

	s.Run("denylisted blocks even for a trivial amount", func() {
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, denied, sui(0.001))
		s.True(dErrors.HasCode(err, dErrors.CodeRecipientDenylisted))
	})
}

// =============================================================================
// Hard blocks mutate nothing
// =============================================================================

func (s *ServiceSuite) TestHardBlockLeavesStateUntouched() {
	before := s.snapshot()

	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(20))
	s.True(dErrors.HasCode(err, dErrors.CodeExceedsPerTxLimit))

	after := s.snapshot()
	s.Equal(before.Balance, after.Balance)
	s.Equal(before.Spend, after.Spend)
	s.Equal(before.Pending.NextID, after.Pending.NextID)
	s.Zero(after.Pending.Len())
}

func (s *ServiceSuite) TestBlockedRequestIsMirrored() {
	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, denied, sui(0.001))
	s.Require().Error(err)

	entry := s.sink.last()
	s.Equal(audit.ResultBlocked, entry.Result)
	s.Equal("recipient_denylisted", entry.Reason)
	s.Equal(audit.ActionRequestTransfer, entry.Action)
	s.Equal("0.001", entry.Amount)
}

func (s *ServiceSuite) TestDenyWinsOverAllow() {
	s.Require().NoError(s.service.AddToAllowlist(s.baseCtx, s.vaultID, owner, denied))
	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, denied, sui(0.001))
	s.True(dErrors.HasCode(err, dErrors.CodeRecipientDenylisted))
}

// =============================================================================
// Preconditions
// =============================================================================

func (s *ServiceSuite) TestRequestPreconditions() {
	s.Run("non-agent caller is unauthorized", func() {
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, owner, allowed, sui(1))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("zero amount is invalid", func() {
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	s.Run("revoked agent is unauthorized", func() {
		s.Require().NoError(s.service.RevokeAgent(s.baseCtx, s.vaultID, owner))
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(1))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		s.Require().NoError(s.service.SetAgent(s.baseCtx, s.vaultID, owner, agent))
		_, err = s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(1))
		s.NoError(err)
	})

	s.Run("unknown vault is not found", func() {
		_, err := s.service.RequestTransfer(s.baseCtx, uuid.New(), agent, allowed, sui(1))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Epoch accounting
// =============================================================================

func (s *ServiceSuite) TestEpochRolloverResetsCounters() {
	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(4))
	s.Require().NoError(err)

	// Same epoch: counters accumulate, never reset between requests.
	_, err = s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(4))
	s.Require().NoError(err)
	s.Equal(sui(8), s.snapshot().Spend.SpentThisEpoch)
	s.Equal(uint64(2), s.snapshot().Spend.TxCountThisEpoch)

	// Next epoch: counters reset before evaluation.
	nextDay := s.at(24 * time.Hour)
	_, err = s.service.RequestTransfer(nextDay, s.vaultID, agent, allowed, sui(4))
	s.Require().NoError(err)

	v, err := s.service.GetVault(nextDay, s.vaultID)
	s.Require().NoError(err)
	s.Equal(sui(4), v.Spend.SpentThisEpoch)
	s.Equal(uint64(1), v.Spend.TxCountThisEpoch)
}

func (s *ServiceSuite) TestDailyLimitClearsNextEpoch() {
	for i := 0; i < 10; i++ {
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(5))
		s.Require().NoError(err)
	}
	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(5))
	s.True(dErrors.HasCode(err, dErrors.CodeExceedsDailyLimit))

	_, err = s.service.RequestTransfer(s.at(24*time.Hour), s.vaultID, agent, allowed, sui(5))
	s.NoError(err)
}

func (s *ServiceSuite) TestRateCapQueuesInsteadOfBlocking() {
	s.Require().NoError(s.service.UpdateLimits(s.baseCtx, s.vaultID, owner, models.Limits{
		MaxPerTx:         sui(10),
		MaxDaily:         sui(50),
		AutoApproveLimit: sui(5),
		MaxTxPerEpoch:    2,
	}))

	for i := 0; i < 2; i++ {
		_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(1))
		s.Require().NoError(err)
	}

	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(1))
	s.Require().NoError(err)
	s.Equal(audit.ResultQueued, receipt.Result)
	s.Equal(models.QueueEpochTxCountExceeded, receipt.Reason)
}

// =============================================================================
// Approve / Reject round trips
// =============================================================================

func (s *ServiceSuite) TestQueueThenApproveMatchesImmediateExecute() {
	before := s.snapshot()

	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)
	s.Require().Equal(audit.ResultQueued, receipt.Result)

	resolution, err := s.service.ApprovePending(s.baseCtx, s.vaultID, owner, receipt.PendingID)
	s.Require().NoError(err)
	s.Equal(audit.ResultApproved, resolution.Result)
	s.NotEmpty(resolution.TxReference)

	after := s.snapshot()
	s.Equal(before.Balance-sui(8), after.Balance)
	s.Equal(before.Spend.SpentThisEpoch+sui(8), after.Spend.SpentThisEpoch)
	s.Equal(before.Spend.TxCountThisEpoch+1, after.Spend.TxCountThisEpoch)
	s.Zero(after.Pending.Len())
}

func (s *ServiceSuite) TestQueueThenRejectRestoresState() {
	before := s.snapshot()

	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)

	resolution, err := s.service.RejectPending(s.baseCtx, s.vaultID, owner, receipt.PendingID)
	s.Require().NoError(err)
	s.Equal(audit.ResultRejected, resolution.Result)

	after := s.snapshot()
	s.Equal(before.Balance, after.Balance)
	s.Equal(before.Spend.SpentThisEpoch, after.Spend.SpentThisEpoch)
	s.Equal(before.Spend.TxCountThisEpoch, after.Spend.TxCountThisEpoch)
	s.Zero(after.Pending.Len())
}

func (s *ServiceSuite) TestApproveRerunsHardChecks() {
	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)

	// Owner denylists the recipient while the transfer waits.
	s.Require().NoError(s.service.AddToDenylist(s.baseCtx, s.vaultID, owner, allowed))

	before := s.snapshot()
	resolution, err := s.service.ApprovePending(s.baseCtx, s.vaultID, owner, receipt.PendingID)
	s.Require().NoError(err)
	s.Equal(audit.ResultBlocked, resolution.Result)
	s.Equal(models.BlockRecipientDenylisted, resolution.BlockReason)

	after := s.snapshot()
	s.Equal(before.Balance, after.Balance, "blocked approval must not move funds")
	s.Zero(after.Pending.Len(), "blocked approval discards the entry")

	// The discarded entry is gone for good.
	_, err = s.service.ApprovePending(s.baseCtx, s.vaultID, owner, receipt.PendingID)
	s.True(dErrors.HasCode(err, dErrors.CodePendingNotFound))
}

func (s *ServiceSuite) TestApproveRechecksBalance() {
	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)

	// Owner drains the vault before approving; no funds were reserved.
	s.Require().NoError(s.service.Withdraw(s.baseCtx, s.vaultID, owner, sui(95)))

	resolution, err := s.service.ApprovePending(s.baseCtx, s.vaultID, owner, receipt.PendingID)
	s.Require().NoError(err)
	s.Equal(audit.ResultBlocked, resolution.Result)
	s.Equal(models.BlockInsufficientBalance, resolution.BlockReason)
}

func (s *ServiceSuite) TestApproveUsesApprovalTimeEpoch() {
	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)

	nextDay := s.at(24 * time.Hour)
	resolution, err := s.service.ApprovePending(nextDay, s.vaultID, owner, receipt.PendingID)
	s.Require().NoError(err)
	s.Equal(audit.ResultApproved, resolution.Result)

	v, err := s.service.GetVault(nextDay, s.vaultID)
	s.Require().NoError(err)
	s.Equal(sui(8), v.Spend.SpentThisEpoch, "debit lands in the approval-time window")
	s.Equal(uint64(1), v.Spend.TxCountThisEpoch)
}

func (s *ServiceSuite) TestResolutionAuthorization() {
	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)

	_, err = s.service.ApprovePending(s.baseCtx, s.vaultID, agent, receipt.PendingID)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.RejectPending(s.baseCtx, s.vaultID, agent, receipt.PendingID)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.RejectPending(s.baseCtx, s.vaultID, owner, 999)
	s.True(dErrors.HasCode(err, dErrors.CodePendingNotFound))
}

func (s *ServiceSuite) TestPendingIDsNeverReused() {
	first, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)

	_, err = s.service.RejectPending(s.baseCtx, s.vaultID, owner, first.PendingID)
	s.Require().NoError(err)

	second, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(8))
	s.Require().NoError(err)
	s.Greater(second.PendingID, first.PendingID)
}

// =============================================================================
// Lifecycle and configuration
// =============================================================================

func (s *ServiceSuite) TestDepositAndWithdraw() {
	s.Require().NoError(s.service.Deposit(s.baseCtx, s.vaultID, sui(10)))
	s.Equal(sui(110), s.snapshot().Balance)

	s.Run("withdraw is owner only", func() {
		err := s.service.Withdraw(s.baseCtx, s.vaultID, agent, sui(1))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("withdraw beyond balance fails", func() {
		err := s.service.Withdraw(s.baseCtx, s.vaultID, owner, sui(1000))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	})

	s.Require().NoError(s.service.Withdraw(s.baseCtx, s.vaultID, owner, sui(110)))
	s.Zero(s.snapshot().Balance)

	s.Run("zero amounts are invalid", func() {
		s.True(dErrors.HasCode(s.service.Deposit(s.baseCtx, s.vaultID, 0), dErrors.CodeInvalidAmount))
		s.True(dErrors.HasCode(s.service.Withdraw(s.baseCtx, s.vaultID, owner, 0), dErrors.CodeInvalidAmount))
	})
}

func (s *ServiceSuite) TestAccessListMutationsAreIdempotent() {
	// Double add and double remove are no-op successes.
	s.Require().NoError(s.service.AddToDenylist(s.baseCtx, s.vaultID, owner, denied))
	s.Require().NoError(s.service.RemoveFromDenylist(s.baseCtx, s.vaultID, owner, "0xnever"))
	s.Require().NoError(s.service.AddToAllowlist(s.baseCtx, s.vaultID, owner, allowed))
	s.Require().NoError(s.service.RemoveFromAllowlist(s.baseCtx, s.vaultID, owner, "0xnever"))

	s.Run("mutations are owner only", func() {
		err := s.service.AddToDenylist(s.baseCtx, s.vaultID, agent, unknown)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestEmptyAllowlistIsUnrestricted() {
	s.Require().NoError(s.service.RemoveFromAllowlist(s.baseCtx, s.vaultID, owner, allowed))

	receipt, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, unknown, sui(0.001))
	s.Require().NoError(err)
	s.Equal(audit.ResultExecuted, receipt.Result)
}

func (s *ServiceSuite) TestUpdateLimitsTakesEffectImmediately() {
	s.Require().NoError(s.service.UpdateLimits(s.baseCtx, s.vaultID, owner, models.Limits{
		MaxPerTx:         sui(1),
		MaxDaily:         sui(50),
		AutoApproveLimit: sui(5),
		MaxTxPerEpoch:    20,
	}))

	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(2))
	s.True(dErrors.HasCode(err, dErrors.CodeExceedsPerTxLimit))

	s.Run("limits are owner only", func() {
		err := s.service.UpdateLimits(s.baseCtx, s.vaultID, agent, models.Limits{})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestExecutedAndQueuedAreMirrored() {
	_, err := s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, allowed, sui(0.001))
	s.Require().NoError(err)
	executed := s.sink.last()
	s.Equal(audit.ResultExecuted, executed.Result)
	s.Equal("0.001", executed.Amount)
	s.NotEmpty(executed.TxReference)

	_, err = s.service.RequestTransfer(s.baseCtx, s.vaultID, agent, unknown, sui(0.001))
	s.Require().NoError(err)
	queued := s.sink.last()
	s.Equal(audit.ResultQueued, queued.Result)
	s.Equal("recipient_not_allowlisted", queued.Reason)
}
