package cloudmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"chauffe/internal/dloid"
	"chauffe/internal/logging"
	"chauffe/internal/stats"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultControllerRole = "manager"
	defaultDifficulty     = 4
)

// ListBlockchains calls GET /api/blockchains.
func (c *Client) ListBlockchains(ctx context.Context) (*BlockchainList, error) {
	var out BlockchainList
	if _, err := c.do(ctx, "list_blockchains", http.MethodGet, "/api/blockchains", nil, &out); err != nil {
		return nil, err
	}
	if out.CountReported && out.Count != len(out.Items) {
		c.logger.Debug("Blockchain count differs from items returned",
			zap.Int("count", out.Count), zap.Int("items", len(out.Items)))
	}
	return &out, nil
}

// GetBlockchain calls GET /api/blockchains/{id}.
func (c *Client) GetBlockchain(ctx context.Context, id string) (*Blockchain, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "blockchain_id", Reason: "required"}
	}
	var out Blockchain
	if _, err := c.do(ctx, "get_blockchain", http.MethodGet, "/api/blockchains/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// UserBlockchains lists the blockchains owned by ownerID and fills in their
// chain state. Blockchains whose detail fetch fails are skipped and logged.
// Order follows the listing.
func (c *Client) UserBlockchains(ctx context.Context, ownerID string) ([]Blockchain, error) {
	if err := c.checkOwner("user_blockchains", ownerID); err != nil {
		return nil, err
	}
	list, err := c.ListBlockchains(ctx)
	if err != nil {
		return nil, err
	}
	return c.ownedWithDetails(ctx, ownerID, list)
}

func (c *Client) checkOwner(op, ownerID string) error {
	if err := ValidateOwner(ownerID); err != nil {
		c.audit.Log(logging.AuditEvent{EventType: logging.AuditValidation, Operation: op, Error: err.Error()})
		return err
	}
	return nil
}

// ownedWithDetails filters list down to ownerID and fetches each detail.
func (c *Client) ownedWithDetails(ctx context.Context, ownerID string, list *BlockchainList) ([]Blockchain, error) {
	var owned []Blockchain
	for _, bc := range list.Items {
		if bc.OwnerID == ownerID {
			owned = append(owned, bc)
		}
	}

	details := make([]*Blockchain, len(owned))
	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i := range owned {
		i := i
		g.Go(func() error {
			d, err := c.GetBlockchain(ctx, owned[i].ID)
			if err != nil {
				c.logger.Warn("Skipping blockchain without details",
					zap.String("blockchain_id", owned[i].ID), zap.Error(err))
				return nil
			}
			details[i] = d
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Op: "user_blockchains", Method: http.MethodGet, Path: "/api/blockchains", Cause: err}
	}

	result := make([]Blockchain, 0, len(owned))
	for i, bc := range owned {
		d := details[i]
		if d == nil {
			continue
		}
		result = append(result, mergeDetail(bc, *d))
	}

	c.logger.Info("Fetched user blockchains",
		zap.String("owner", ownerID),
		zap.Int("listed", len(list.Items)),
		zap.Int("owned", len(owned)),
		zap.Int("returned", len(result)))
	return result, nil
}

// mergeDetail prefers listing metadata and takes chain state from the detail.
func mergeDetail(meta, detail Blockchain) Blockchain {
	out := meta
	if detail.ChainInfo != nil {
		out.ChainInfo = detail.ChainInfo
	}
	if len(out.DLOID) == 0 {
		out.DLOID = detail.DLOID
	}
	if out.ControllerName == "" {
		out.ControllerName = detail.ControllerName
	}
	if out.ControllerRole == "" {
		out.ControllerRole = detail.ControllerRole
	}
	if out.Name == "" {
		out.Name = detail.Name
	}
	if out.CreatedAt == "" {
		out.CreatedAt = detail.CreatedAt
	}
	if out.GenesisDLOID == "" {
		out.GenesisDLOID = detail.GenesisDLOID
	}
	return out
}

// Entries maps blockchains onto aggregation entries.
func Entries(chains []Blockchain) []stats.Entry {
	entries := make([]stats.Entry, 0, len(chains))
	for _, bc := range chains {
		e := stats.Entry{
			ID:             bc.ID,
			Name:           bc.Name,
			ControllerName: bc.ControllerName,
			ControllerRole: bc.ControllerRole,
			CreatedAt:      bc.CreatedAt,
			DLOID:          bc.DLOID,
			GenesisDLOID:   bc.GenesisDLOID,
		}
		if bc.ChainInfo != nil {
			e.Blocks = bc.ChainInfo.Length
			e.PendingTransactions = bc.ChainInfo.PendingTransactions
		}
		entries = append(entries, e)
	}
	return entries
}

// UserSummary fetches ownerID's blockchains and aggregates them. Malformed
// DLOIDs are skipped and reported in the summary, never fatal.
func (c *Client) UserSummary(ctx context.Context, ownerID string) (stats.Summary, error) {
	chains, err := c.UserBlockchains(ctx, ownerID)
	if err != nil {
		return stats.Summary{}, err
	}
	return c.summarize(ownerID, chains), nil
}

// UserSummaryFromList is UserSummary over a listing the caller already
// fetched. Only the detail requests are sent.
func (c *Client) UserSummaryFromList(ctx context.Context, ownerID string, list *BlockchainList) (stats.Summary, error) {
	if err := c.checkOwner("user_summary", ownerID); err != nil {
		return stats.Summary{}, err
	}
	chains, err := c.ownedWithDetails(ctx, ownerID, list)
	if err != nil {
		return stats.Summary{}, err
	}
	return c.summarize(ownerID, chains), nil
}

func (c *Client) summarize(ownerID string, chains []Blockchain) stats.Summary {
	s := stats.Summarize(ownerID, Entries(chains))
	if s.Skipped > 0 || s.Overflow {
		stats.Result{Total: s.TotalChauffecoins, Skipped: s.Skipped, Errors: s.Errors, Overflow: s.Overflow}.LogSkipped(c.logger)
	}
	return s
}

// CreateBlockchain calls POST /api/blockchains. The owner is validated first
// and nothing is sent when it is missing. The call is gated on the
// compatibility verdict; an incompatible version is reported through
// CreateResult.Warning. Creates are never retried.
func (c *Client) CreateBlockchain(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	const op = "create_blockchain"

	if err := ValidateOwner(req.OwnerID); err != nil {
		c.audit.Log(logging.AuditEvent{EventType: logging.AuditValidation, Operation: op, Error: err.Error()})
		return nil, err
	}
	if _, err := dloid.Encode(req.DLOID); err != nil {
		verr := &ValidationError{Field: "dloid_params", Reason: err.Error(), Err: err}
		c.audit.Log(logging.AuditEvent{EventType: logging.AuditValidation, Operation: op, OwnerID: req.OwnerID, Error: verr.Error()})
		return nil, verr
	}

	verdict, err := c.gate(ctx, op)
	if err != nil {
		return nil, err
	}

	payload := createPayload{
		Name:             req.Name,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		ExistingLicenses: req.ExistingLicenses,
		UserUUID:         req.OwnerID,
		DLOIDParams:      dloid.Record{Fields: req.DLOID},
		ControllerRole:   req.ControllerRole,
		Difficulty:       req.Difficulty,
	}
	if payload.ControllerRole == "" {
		payload.ControllerRole = defaultControllerRole
	}
	if payload.Difficulty <= 0 {
		payload.Difficulty = defaultDifficulty
	}

	c.audit.CallStart(op, "/api/blockchains", req.OwnerID)

	var resp createResponse
	if _, err := c.do(ctx, op, http.MethodPost, "/api/blockchains", payload, &resp); err != nil {
		c.forgetVerdict(err)
		return nil, err
	}

	result := &CreateResult{
		BlockchainID:   resp.BlockchainID,
		ControllerName: resp.ControllerName,
		RawDLOID:       resp.DLOID,
		Compatibility:  verdict,
		Warning:        verdict.Warning,
	}
	if f, ok := parseEchoedDLOID(resp.DLOID, resp.ControllerName); ok {
		result.DLOID = &f
	}

	c.logger.Info("Blockchain created",
		zap.String("blockchain_id", result.BlockchainID),
		zap.String("controller_name", result.ControllerName),
		zap.String("owner", req.OwnerID),
		zap.Bool("compat_warning", result.Warning))
	return result, nil
}

// GenerateControllerName calls POST /api/generate_controller_name. It is
// gated on compatibility like CreateBlockchain.
func (c *Client) GenerateControllerName(ctx context.Context, req ControllerNameRequest) (*ControllerNameResult, error) {
	const op = "generate_controller_name"

	if req.OwnerID != "" {
		if err := ValidateOwner(req.OwnerID); err != nil {
			return nil, err
		}
	}

	verdict, err := c.gate(ctx, op)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ControllerName string `json:"controller_name"`
	}
	status, err := c.do(ctx, op, http.MethodPost, "/api/generate_controller_name", req, &resp)
	if err != nil {
		c.forgetVerdict(err)
		return nil, err
	}
	if resp.ControllerName == "" {
		return nil, &RemoteError{
			Op: op, Method: http.MethodPost, Path: "/api/generate_controller_name",
			StatusCode: status, Mutating: true,
			Cause: errMissingControllerName,
		}
	}
	return &ControllerNameResult{
		ControllerName: resp.ControllerName,
		Compatibility:  verdict,
		Warning:        verdict.Warning,
	}, nil
}

// ValidateOwner reports a *ValidationError unless ownerID is a UUID.
func ValidateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return &ValidationError{Field: "user_uuid", Reason: "owner id is required"}
	}
	if _, err := uuid.Parse(ownerID); err != nil {
		return &ValidationError{Field: "user_uuid", Reason: "owner id must be a UUID"}
	}
	return nil
}

func parseEchoedDLOID(raw json.RawMessage, controller string) (dloid.Fields, bool) {
	if len(raw) == 0 {
		return dloid.Fields{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := dloid.Decode(dloid.StripController(s, controller))
		return f, err == nil
	}
	f, err := dloid.Normalize(raw)
	return f, err == nil
}
