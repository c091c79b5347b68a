// Command agentdemo walks a fresh vault through the canonical scenarios: an
// auto-approved transfer, the hard blocks, the approval queue, and an owner
// resolution. It needs a running server in dev mode (no signing key) and,
// optionally, a walrus endpoint to mirror blocked requests the way an
// on-chain caller would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"agentvault/internal/audit"
	"agentvault/internal/platform/config"
	"agentvault/internal/platform/logger"
	"agentvault/internal/vault/models"
	"agentvault/pkg/platform/middleware/auth"
)

const (
	ownerAddr   = "0xowner"
	agentAddr   = "0xagent"
	allowedAddr = "0x1111"
	deniedAddr  = "0x2222"
	unknownAddr = "0x3333"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "agentvault server base url")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	// Blocked requests never reach the audit pipeline server-side; the
	// requester mirrors them itself, as the original callers did.
	var mirror audit.Mirror
	if cfg.WalrusPublisherURL != "" {
		mirror = audit.NewWalrusMirror(cfg.WalrusPublisherURL, cfg.WalrusAggregatorURL, cfg.WalrusStoreEpochs)
	} else {
		mirror = audit.NewMemoryMirror()
	}

	d := &demo{
		server: *serverURL,
		client: &http.Client{Timeout: 10 * time.Second},
		mirror: mirror,
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := d.run(ctx); err != nil {
		log.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

type demo struct {
	server  string
	client  *http.Client
	mirror  audit.Mirror
	log     *slog.Logger
	vaultID uuid.UUID
}

func sui(n float64) uint64 {
	return uint64(n * float64(models.MISTPerSUI))
}

func (d *demo) run(ctx context.Context) error {
	if err := d.setup(ctx); err != nil {
		return err
	}

	d.log.Info("scenario 1: small transfer to an allowlisted address")
	if _, err := d.transfer(ctx, allowedAddr, sui(0.001)); err != nil {
		return err
	}

	d.log.Info("scenario 2: transfer over the per-transaction limit")
	if err := d.expectBlocked(ctx, allowedAddr, sui(20)); err != nil {
		return err
	}

	d.log.Info("scenario 3: transfer above the auto-approve threshold")
	pendingID, err := d.transfer(ctx, allowedAddr, sui(8))
	if err != nil {
		return err
	}

	d.log.Info("scenario 4: transfer to an address not on the allowlist")
	if _, err := d.transfer(ctx, unknownAddr, sui(0.001)); err != nil {
		return err
	}

	d.log.Info("scenario 5: transfer to a denylisted address")
	if err := d.expectBlocked(ctx, deniedAddr, sui(0.001)); err != nil {
		return err
	}

	d.log.Info("scenario 6: owner approves the held transfer", "pending_id", pendingID)
	return d.approve(ctx, pendingID)
}

func (d *demo) setup(ctx context.Context) error {
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	err := d.call(ctx, http.MethodPost, "/vaults", ownerAddr, map[string]any{
		"agent":              agentAddr,
		"max_per_tx":         sui(10),
		"max_daily":          sui(50),
		"auto_approve_limit": sui(5),
		"max_tx_per_epoch":   uint64(20),
		"initial_deposit":    sui(100),
	}, &created)
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	d.vaultID = created.ID
	d.log.Info("vault created", "vault_id", d.vaultID)

	base := "/vaults/" + d.vaultID.String()
	if err := d.call(ctx, http.MethodPost, base+"/allowlist/"+allowedAddr, ownerAddr, nil, nil); err != nil {
		return fmt.Errorf("seed allowlist: %w", err)
	}
	if err := d.call(ctx, http.MethodPost, base+"/denylist/"+deniedAddr, ownerAddr, nil, nil); err != nil {
		return fmt.Errorf("seed denylist: %w", err)
	}
	return nil
}

// transfer requests a transfer as the agent and reports the outcome. It
// returns the pending id when the transfer was queued, zero otherwise.
func (d *demo) transfer(ctx context.Context, to string, amount uint64) (uint64, error) {
	var receipt struct {
		Result      string  `json:"result"`
		Reason      string  `json:"reason"`
		PendingID   *uint64 `json:"pending_id"`
		TxReference string  `json:"tx_reference"`
	}
	err := d.call(ctx, http.MethodPost, "/vaults/"+d.vaultID.String()+"/transfers", agentAddr,
		map[string]any{"to": to, "amount": amount}, &receipt)
	if err != nil {
		return 0, err
	}

	switch receipt.Result {
	case "executed":
		d.log.Info("transfer executed", "to", to, "tx_reference", receipt.TxReference)
		return 0, nil
	case "queued":
		d.log.Info("transfer queued for approval", "to", to, "reason", receipt.Reason, "pending_id", *receipt.PendingID)
		return *receipt.PendingID, nil
	default:
		return 0, fmt.Errorf("unexpected transfer result %q", receipt.Result)
	}
}

// expectBlocked requests a transfer that must hard-block, then mirrors the
// blocked record itself.
func (d *demo) expectBlocked(ctx context.Context, to string, amount uint64) error {
	err := d.call(ctx, http.MethodPost, "/vaults/"+d.vaultID.String()+"/transfers", agentAddr,
		map[string]any{"to": to, "amount": amount}, nil)

	var blocked *apiError
	if !asAPIError(err, &blocked) || blocked.Status != http.StatusUnprocessableEntity {
		return fmt.Errorf("expected a hard block, got %v", err)
	}
	d.log.Info("transfer blocked", "to", to, "reason", blocked.Code)

	entry := audit.Entry{
		Timestamp: time.Now().UTC(),
		VaultID:   d.vaultID,
		Agent:     agentAddr,
		Action:    audit.ActionRequestTransfer,
		To:        to,
		Amount:    models.FormatSUI(amount),
		Result:    audit.ResultBlocked,
		Reason:    blocked.Code,
	}
	blobID, err := d.mirror.Store(ctx, entry)
	if err != nil {
		d.log.Warn("blocked record not mirrored", "error", err)
		return nil
	}
	d.log.Info("blocked record mirrored", "blob_id", blobID)
	return nil
}

func (d *demo) approve(ctx context.Context, pendingID uint64) error {
	var resolution struct {
		Result      string `json:"result"`
		TxReference string `json:"tx_reference"`
	}
	path := fmt.Sprintf("/vaults/%s/pending/%d/approve", d.vaultID, pendingID)
	if err := d.call(ctx, http.MethodPost, path, ownerAddr, nil, &resolution); err != nil {
		return err
	}
	d.log.Info("pending transfer approved", "result", resolution.Result, "tx_reference", resolution.TxReference)
	return nil
}

// apiError carries the coded error body the server writes.
type apiError struct {
	Status      int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s (%s)", e.Status, e.Code, e.Description)
}

func asAPIError(err error, target **apiError) bool {
	ae, ok := err.(*apiError)
	if !ok {
		return false
	}
	*target = ae
	return true
}

// call issues one JSON request with the dev caller header and decodes the
// response into out when given.
func (d *demo) call(ctx context.Context, method, path, caller string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.server+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.DevCallerHeader, caller)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		ae := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(ae)
		return ae
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
