// Package smoke exercises a live CloudManager end to end: health, listing,
// and one create with fixed sentinel data.
package smoke

import (
	"context"
	"fmt"
	"time"

	"chauffe/internal/cloudmanager"
	"chauffe/internal/compat"
	"chauffe/internal/dloid"

	"go.uber.org/zap"
)

// Sentinel data used by the create step. The owner is a fixed UUID so that
// smoke-test blockchains are easy to find and clean up.
const (
	SentinelOwnerID = "00000000-0000-4000-8000-00000000c0de"
	SentinelDLOID   = "0000000001NNN0000000000NP"
	sentinelName    = "chauffe-smoke-test"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning"
	OutcomeFailure Outcome = "failure"
)

// Step names, in run order.
const (
	StepHealth = "health"
	StepList   = "list_blockchains"
	StepCreate = "create_blockchain"
)

// StepResult is one counted step of a run.
type StepResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail"`
	Error    string        `json:"error,omitempty"`
}

// Report is the outcome of Harness.Run.
type Report struct {
	BaseURL   string         `json:"base_url"`
	StartedAt time.Time      `json:"started_at"`
	Steps     []StepResult   `json:"steps"`
	Passed    int            `json:"passed"`
	Total     int            `json:"total"`
	Overall   Outcome        `json:"overall"`
	Verdict   compat.Verdict `json:"verdict"`
	// Version holds the /api/version answer. It is informational and never
	// affects Overall.
	Version      *cloudmanager.VersionResponse `json:"version,omitempty"`
	VersionError string                        `json:"version_error,omitempty"`
}

// Harness runs the smoke test against one CloudManager.
type Harness struct {
	cfg    cloudmanager.Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a harness. cfg is copied; every Run builds its own client and
// negotiator from it, so a run never touches a client shared with callers.
func New(cfg cloudmanager.Config, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.CompatibleVersions = append([]string(nil), cfg.CompatibleVersions...)
	return &Harness{cfg: cfg, logger: logger, now: time.Now}
}

// Run executes health, list and create in order. The returned error is
// non-nil only when the client cannot be constructed; failing steps are
// reported in the Report.
func (h *Harness) Run(ctx context.Context) (Report, error) {
	client, err := cloudmanager.New(h.cfg, h.logger.Named("client"))
	if err != nil {
		return Report{}, fmt.Errorf("failed to create smoke client: %w", err)
	}

	rep := Report{BaseURL: client.BaseURL(), StartedAt: h.now()}
	h.logger.Info("Smoke test starting", zap.String("base_url", rep.BaseURL))

	rep.Steps = append(rep.Steps, h.step(StepHealth, func() (string, error) {
		v := client.CheckHealth(ctx)
		rep.Verdict = v
		if !v.Reachable() {
			return "", fmt.Errorf("%s", v.Message)
		}
		return v.Message, nil
	}))

	if ver, err := client.Version(ctx); err != nil {
		rep.VersionError = err.Error()
		h.logger.Warn("Version endpoint failed", zap.Error(err))
	} else {
		rep.Version = ver
	}

	rep.Steps = append(rep.Steps, h.step(StepList, func() (string, error) {
		list, err := client.ListBlockchains(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d blockchains", list.Count), nil
	}))

	rep.Steps = append(rep.Steps, h.step(StepCreate, func() (string, error) {
		fields, err := dloid.Decode(SentinelDLOID)
		if err != nil {
			return "", err
		}
		res, err := client.CreateBlockchain(ctx, cloudmanager.CreateRequest{
			Name:      sentinelName,
			FirstName: "Smoke",
			LastName:  "Test",
			OwnerID:   SentinelOwnerID,
			DLOID:     fields,
		})
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("created %s", res.BlockchainID)
		if res.ControllerName != "" {
			detail += fmt.Sprintf(" (controller %s)", res.ControllerName)
		}
		if res.Warning {
			detail += "; version warning: " + res.Compatibility.Message
		}
		return detail, nil
	}))

	for _, s := range rep.Steps {
		if s.Success {
			rep.Passed++
		}
	}
	rep.Total = len(rep.Steps)
	rep.Overall = overall(rep.Passed, rep.Total)

	h.logger.Info("Smoke test finished",
		zap.String("overall", string(rep.Overall)),
		zap.Int("passed", rep.Passed),
		zap.Int("total", rep.Total))
	return rep, nil
}

func (h *Harness) step(name string, fn func() (string, error)) StepResult {
	start := h.now()
	detail, err := fn()
	res := StepResult{Name: name, Success: err == nil, Duration: h.now().Sub(start), Detail: detail}
	if err != nil {
		res.Error = err.Error()
		h.logger.Warn("Smoke step failed", zap.String("step", name), zap.Error(err))
	} else {
		h.logger.Debug("Smoke step passed", zap.String("step", name), zap.String("detail", detail))
	}
	return res
}

// overall maps a pass count onto an outcome: all passed is success, one
// short is a warning, anything else fails.
func overall(passed, total int) Outcome {
	switch {
	case total > 0 && passed == total:
		return OutcomeSuccess
	case total > 1 && passed == total-1:
		return OutcomeWarning
	default:
		return OutcomeFailure
	}
}
