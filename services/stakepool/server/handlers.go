package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stakepool/gateway/middleware"
	"stakepool/native/stakepool"
	"stakepool/observability"
)

const maxRequestBody = 1 << 20

type amountRequest struct {
	Amount string `json:"amount"`
}

type secondsRequest struct {
	Seconds uint64 `json:"seconds"`
}

type assetRequest struct {
	Asset string `json:"asset"`
}

type accountResponse struct {
	Address     string `json:"address"`
	Staked      string `json:"staked"`
	Pending     string `json:"pending"`
	RequestedAt uint64 `json:"requestedAt,omitempty"`
	AvailableAt uint64 `json:"availableAt,omitempty"`
	Earned      string `json:"earned"`
}

type poolResponse struct {
	TotalStaked       string `json:"totalStaked"`
	RewardRate        string `json:"rewardRate"`
	RewardsDuration   uint64 `json:"rewardsDuration"`
	PeriodFinish      uint64 `json:"periodFinish"`
	LastUpdateTime    uint64 `json:"lastUpdateTime"`
	RewardPerUnit     string `json:"rewardPerUnit"`
	RewardForDuration string `json:"rewardForDuration"`
	CooldownPeriod    uint64 `json:"cooldownPeriod"`
	Asset             string `json:"asset,omitempty"`
	EffectiveTime     uint64 `json:"effectiveTime"`
}

type auditResponse struct {
	Accounts             int    `json:"accounts"`
	SumStaked            string `json:"sumStaked"`
	SumPending           string `json:"sumPending"`
	TotalStaked          string `json:"totalStaked"`
	RewardPerTokenStored string `json:"rewardPerTokenStored"`
	Consistent           bool   `json:"consistent"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.accountAmountOp(w, r, "deposit", s.ledger.Deposit)
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.accountAmountOp(w, r, "request_withdrawal", s.ledger.RequestWithdrawal)
}

func (s *Server) handleCompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.accountOp(w, r, "complete_withdrawal", s.ledger.CompleteWithdrawal)
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.accountOp(w, r, "cancel_withdrawal", s.ledger.CancelWithdrawal)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.accountOp(w, r, "claim_reward", s.ledger.ClaimReward)
}

func (s *Server) accountAmountOp(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address, *uint256.Int) error) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.invoke(r.Context(), op, caller, func(ctx context.Context) error {
		return fn(ctx, caller, amount)
	})
	s.respondAccount(w, caller, err)
}

func (s *Server) accountOp(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address) error) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.invoke(r.Context(), op, caller, func(ctx context.Context) error {
		return fn(ctx, caller)
	})
	s.respondAccount(w, caller, err)
}

func (s *Server) respondAccount(w http.ResponseWriter, addr common.Address, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.ledger.Account(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountPayload(view))
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseQuantity(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.invoke(r.Context(), "fund_period", caller, func(ctx context.Context) error {
		return s.ledger.FundPeriod(ctx, caller, amount)
	})
	s.respondPool(w, err)
}

func (s *Server) handleSetDuration(w http.ResponseWriter, r *http.Request) {
	s.secondsOp(w, r, "set_rewards_duration", s.ledger.SetRewardsDuration)
}

func (s *Server) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	s.secondsOp(w, r, "set_cooldown_period", s.ledger.SetCooldownPeriod)
}

func (s *Server) secondsOp(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address, uint64) error) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req secondsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err = s.invoke(r.Context(), op, caller, func(ctx context.Context) error {
		return fn(ctx, caller, req.Seconds)
	})
	s.respondPool(w, err)
}

func (s *Server) handleSetAsset(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req assetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.invoke(r.Context(), "set_asset", caller, func(ctx context.Context) error {
		return s.ledger.SetAssetOnce(ctx, caller, asset)
	})
	s.respondPool(w, err)
}

func (s *Server) respondPool(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	s.handlePool(w, nil)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.ledger.Account(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountPayload(view))
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request) {
	view, err := s.ledger.PoolView()
	if err != nil {
		writeError(w, err)
		return
	}
	observability.StakePool().SetPoolState(view.TotalStaked, view.RewardRate, view.PeriodFinish)
	writeJSON(w, http.StatusOK, poolPayload(view))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Audit()
	if err != nil {
		writeError(w, err)
		return
	}
	if !report.Consistent {
		s.logger.Error("stakepool: audit found inconsistent totals",
			slog.String("sumStaked", report.SumStaked.Dec()),
			slog.String("totalStaked", report.TotalStaked.Dec()))
	}
	writeJSON(w, http.StatusOK, auditResponse{
		Accounts:             report.Accounts,
		SumStaked:            report.SumStaked.Dec(),
		SumPending:           report.SumPending.Dec(),
		TotalStaked:          report.TotalStaked.Dec(),
		RewardPerTokenStored: report.RewardPerTokenStored.Dec(),
		Consistent:           report.Consistent,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, errNoJournal)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (s *Server) handleAccountEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, errNoJournal)
		return
	}
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.journal.ForAccount(r.Context(), addr.Hex(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, errNoJournal)
		return
	}
	var buf bytes.Buffer
	rows, err := s.journal.ExportParquet(r.Context(), &buf)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=stakepool-events-%d.parquet", time.Now().UTC().Unix()))
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

// invoke runs a ledger call inside a span and records its outcome.
func (s *Server) invoke(ctx context.Context, op string, caller common.Address, fn func(context.Context) error) error {
	if s.ledger == nil {
		return errLedgerMissing
	}
	ctx, span := s.tracer.Start(ctx, "stakepool."+op)
	defer span.End()
	span.SetAttributes(attribute.String("stakepool.caller", caller.Hex()))

	start := time.Now()
	err := fn(ctx)
	observability.StakePool().RecordOperation(op, outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		if statusFor(err) >= http.StatusInternalServerError {
			s.logger.Error("stakepool: operation failed",
				slog.String("operation", op),
				slog.String("caller", caller.Hex()),
				slog.Any("error", err))
		}
		return err
	}
	if view, viewErr := s.ledger.PoolView(); viewErr == nil {
		observability.StakePool().SetPoolState(view.TotalStaked, view.RewardRate, view.PeriodFinish)
	}
	return nil
}

func callerFrom(r *http.Request) (common.Address, error) {
	subject := middleware.Subject(r.Context())
	if subject == "" {
		return common.Address{}, errMissingCaller
	}
	return parseAddress(subject)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errMalformedInput
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedInput, err)
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	amount, err := parseQuantity(raw)
	if err != nil || amount.IsZero() {
		return nil, errBadAmount
	}
	return amount, nil
}

// parseQuantity accepts zero; funding uses it to re-spread leftover reward.
func parseQuantity(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errBadAmount
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, errBadAmount
	}
	return amount, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", errBadAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errMalformedInput)
	}
	return limit, nil
}

func accountPayload(view *stakepool.AccountView) accountResponse {
	return accountResponse{
		Address:     view.Address.Hex(),
		Staked:      view.Staked.Dec(),
		Pending:     view.Pending.Amount.Dec(),
		RequestedAt: view.RequestedAt,
		AvailableAt: view.Pending.AvailableAt,
		Earned:      view.Earned.Dec(),
	}
}

func poolPayload(view *stakepool.PoolView) poolResponse {
	out := poolResponse{
		TotalStaked:       view.TotalStaked.Dec(),
		RewardRate:        view.RewardRate.Dec(),
		RewardsDuration:   view.RewardsDuration,
		PeriodFinish:      view.PeriodFinish,
		LastUpdateTime:    view.LastUpdateTime,
		RewardPerUnit:     view.RewardPerUnit.Dec(),
		RewardForDuration: view.RewardForDuration.Dec(),
		CooldownPeriod:    view.CooldownPeriod,
		EffectiveTime:     view.EffectiveTime,
	}
	if view.Asset != (common.Address{}) {
		out.Asset = view.Asset.Hex()
	}
	return out
}
