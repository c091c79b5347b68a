package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agentvault/internal/audit"
	"agentvault/internal/vault/models"
	"agentvault/internal/vault/service"
	dErrors "agentvault/pkg/domain-errors"
	"agentvault/pkg/platform/httputil"
	"agentvault/pkg/requestcontext"
)

// Service defines the vault operations the HTTP layer depends on.
type Service interface {
	CreateVault(ctx context.Context, p service.CreateVaultParams) (*models.Vault, error)
	GetVault(ctx context.Context, id uuid.UUID) (*models.Vault, error)
	Deposit(ctx context.Context, vaultID uuid.UUID, amount uint64) error
	Withdraw(ctx context.Context, vaultID uuid.UUID, caller models.Address, amount uint64) error
	RequestTransfer(ctx context.Context, vaultID uuid.UUID, caller, to models.Address, amount uint64) (service.TransferReceipt, error)
	ApprovePending(ctx context.Context, vaultID uuid.UUID, caller models.Address, pendingID uint64) (service.ResolutionReceipt, error)
	RejectPending(ctx context.Context, vaultID uuid.UUID, caller models.Address, pendingID uint64) (service.ResolutionReceipt, error)
	UpdateLimits(ctx context.Context, vaultID uuid.UUID, caller models.Address, limits models.Limits) error
	AddToDenylist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error
	RemoveFromDenylist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error
	AddToAllowlist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error
	RemoveFromAllowlist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error
	SetAgent(ctx context.Context, vaultID uuid.UUID, caller, agent models.Address) error
	RevokeAgent(ctx context.Context, vaultID uuid.UUID, caller models.Address) error
}

// Handler wires vault endpoints to the vault service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a vault handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts vault endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/vaults", func(r chi.Router) {
		r.Post("/", h.HandleCreateVault)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetVault)
			r.Post("/deposit", h.HandleDeposit)
			r.Post("/withdraw", h.HandleWithdraw)
			r.Post("/transfers", h.HandleRequestTransfer)
			r.Post("/pending/{pid}/approve", h.HandleApprovePending)
			r.Post("/pending/{pid}/reject", h.HandleRejectPending)
			r.Put("/limits", h.HandleUpdateLimits)
			r.Post("/denylist/{addr}", h.HandleAddDenylist)
			r.Delete("/denylist/{addr}", h.HandleRemoveDenylist)
			r.Post("/allowlist/{addr}", h.HandleAddAllowlist)
			r.Delete("/allowlist/{addr}", h.HandleRemoveAllowlist)
			r.Put("/agent", h.HandleSetAgent)
			r.Delete("/agent", h.HandleRevokeAgent)
		})
	})
}

// caller extracts the authenticated caller address; empty means the identity
// middleware rejected or skipped the request.
func caller(ctx context.Context) (models.Address, bool) {
	addr := models.Address(requestcontext.CallerAddress(ctx))
	return addr, addr != ""
}

func vaultID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "vault id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func pendingID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	pid, err := strconv.ParseUint(chi.URLParam(r, "pid"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "pending id must be a non-negative integer"))
		return 0, false
	}
	return pid, true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (models.Address, bool) {
	addr := chi.URLParam(r, "addr")
	if addr == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "address is required"))
		return "", false
	}
	return models.Address(addr), true
}

// HandleCreateVault handles POST /vaults. The authenticated caller becomes
// the vault owner.
func (h *Handler) HandleCreateVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateVaultRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.service.CreateVault(ctx, service.CreateVaultParams{
		Owner:          owner,
		Agent:          models.Address(req.Agent),
		Limits:         req.ParsedLimits(),
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "vault creation failed",
			"request_id", requestID,
			"owner", owner,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, FromVault(v))
}

// HandleGetVault handles GET /vaults/{id}.
func (h *Handler) HandleGetVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	v, err := h.service.GetVault(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromVault(v))
}

// HandleDeposit handles POST /vaults/{id}/deposit. Deposits are open to any
// caller.
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Deposit(ctx, id, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleWithdraw handles POST /vaults/{id}/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Withdraw(ctx, id, addr, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRequestTransfer handles POST /vaults/{id}/transfers. The response
// status distinguishes the two successful outcomes: 200 for an executed
// transfer, 202 for one queued for owner approval. Hard blocks surface as
// coded errors.
func (h *Handler) HandleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.service.RequestTransfer(ctx, id, addr, models.Address(req.To), req.Amount)
	if err != nil {
		h.logger.WarnContext(ctx, "transfer request failed",
			"request_id", requestID,
			"vault_id", id,
			"to", req.To,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if receipt.Result == audit.ResultQueued {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, FromTransferReceipt(receipt))
}

// HandleApprovePending handles POST /vaults/{id}/pending/{pid}/approve.
func (h *Handler) HandleApprovePending(w http.ResponseWriter, r *http.Request) {
	h.resolvePending(w, r, h.service.ApprovePending)
}

// HandleRejectPending handles POST /vaults/{id}/pending/{pid}/reject.
func (h *Handler) HandleRejectPending(w http.ResponseWriter, r *http.Request) {
	h.resolvePending(w, r, h.service.RejectPending)
}

func (h *Handler) resolvePending(w http.ResponseWriter, r *http.Request,
	resolve func(context.Context, uuid.UUID, models.Address, uint64) (service.ResolutionReceipt, error),
) {
	ctx := r.Context()

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	pid, ok := pendingID(w, r)
	if !ok {
		return
	}

	receipt, err := resolve(ctx, id, addr, pid)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromResolutionReceipt(receipt))
}

// HandleUpdateLimits handles PUT /vaults/{id}/limits.
func (h *Handler) HandleUpdateLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LimitsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.UpdateLimits(ctx, id, addr, req.ParsedLimits()); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAddDenylist handles POST /vaults/{id}/denylist/{addr}.
func (h *Handler) HandleAddDenylist(w http.ResponseWriter, r *http.Request) {
	h.accessList(w, r, h.service.AddToDenylist)
}

// HandleRemoveDenylist handles DELETE /vaults/{id}/denylist/{addr}.
func (h *Handler) HandleRemoveDenylist(w http.ResponseWriter, r *http.Request) {
	h.accessList(w, r, h.service.RemoveFromDenylist)
}

// HandleAddAllowlist handles POST /vaults/{id}/allowlist/{addr}.
func (h *Handler) HandleAddAllowlist(w http.ResponseWriter, r *http.Request) {
	h.accessList(w, r, h.service.AddToAllowlist)
}

// HandleRemoveAllowlist handles DELETE /vaults/{id}/allowlist/{addr}.
func (h *Handler) HandleRemoveAllowlist(w http.ResponseWriter, r *http.Request) {
	h.accessList(w, r, h.service.RemoveFromAllowlist)
}

func (h *Handler) accessList(w http.ResponseWriter, r *http.Request,
	mutate func(context.Context, uuid.UUID, models.Address, models.Address) error,
) {
	ctx := r.Context()

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	target, ok := pathAddress(w, r)
	if !ok {
		return
	}

	if err := mutate(ctx, id, addr, target); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetAgent handles PUT /vaults/{id}/agent.
func (h *Handler) HandleSetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AgentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.SetAgent(ctx, id, addr, models.Address(req.Agent)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeAgent handles DELETE /vaults/{id}/agent.
func (h *Handler) HandleRevokeAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, ok := caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeAgent(ctx, id, addr); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
