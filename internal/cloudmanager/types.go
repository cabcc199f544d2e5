package cloudmanager

import (
	"encoding/json"
	"sort"

	"chauffe/internal/compat"
	"chauffe/internal/dloid"
)

// HealthResponse is the body of GET /api/health. Optional fields are
// pointers so that absence is distinguishable from a zero value.
type HealthResponse struct {
	Status             string  `json:"status,omitempty"`
	Service            string  `json:"service,omitempty"`
	Version            *string `json:"version,omitempty"`
	ManagedBlockchains *int    `json:"managed_blockchains,omitempty"`
}

// VersionResponse is the body of GET /api/version.
type VersionResponse struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date,omitempty"`
	Author    string `json:"author,omitempty"`
}

// ChainInfo is the chain state CloudManager reports per blockchain.
type ChainInfo struct {
	Length              int `json:"length"`
	PendingTransactions int `json:"pending_transactions"`
}

// Blockchain is a blockchain as CloudManager reports it. DLOID is kept raw
// because it may arrive packed, prefixed with the controller name, or as an
// object.
type Blockchain struct {
	ID             string          `json:"blockchain_id"`
	Name           string          `json:"name,omitempty"`
	OwnerID        string          `json:"user_uuid,omitempty"`
	ControllerName string          `json:"controller_name,omitempty"`
	ControllerRole string          `json:"controller_role,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	DLOID          json.RawMessage `json:"dloid_params,omitempty"`
	GenesisDLOID   string          `json:"genesis_dloid,omitempty"`
	ChainInfo      *ChainInfo      `json:"chain_info,omitempty"`
}

// BlockchainList is the body of GET /api/blockchains. CloudManager has served
// both an "items" array and a "blockchains" object keyed by id; both decode
// here. Count falls back to len(Items) when the service omits it.
type BlockchainList struct {
	Count         int
	CountReported bool
	Items         []Blockchain
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *BlockchainList) UnmarshalJSON(data []byte) error {
	var w struct {
		Count       *int                  `json:"count"`
		Items       []Blockchain          `json:"items"`
		Blockchains map[string]Blockchain `json:"blockchains"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	items := w.Items
	if items == nil && w.Blockchains != nil {
		ids := make([]string, 0, len(w.Blockchains))
		for id := range w.Blockchains {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		items = make([]Blockchain, 0, len(ids))
		for _, id := range ids {
			bc := w.Blockchains[id]
			if bc.ID == "" {
				bc.ID = id
			}
			items = append(items, bc)
		}
	}
	if items == nil {
		items = []Blockchain{}
	}

	*l = BlockchainList{Items: items, Count: len(items)}
	if w.Count != nil {
		l.Count = *w.Count
		l.CountReported = true
	}
	return nil
}

// CreateRequest describes a blockchain to create.
type CreateRequest struct {
	Name             string
	FirstName        string
	LastName         string
	ExistingLicenses int
	// OwnerID is the external user UUID. It is mandatory.
	OwnerID        string
	DLOID          dloid.Fields
	ControllerRole string // default "manager"
	Difficulty     int    // default 4
}

type createPayload struct {
	Name             string       `json:"name,omitempty"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	ExistingLicenses int          `json:"existing_licenses"`
	UserUUID         string       `json:"user_uuid"`
	DLOIDParams      dloid.Record `json:"dloid_params"`
	ControllerRole   string       `json:"controller_role"`
	Difficulty       int          `json:"difficulty"`
}

type createResponse struct {
	BlockchainID   string          `json:"blockchain_id"`
	ControllerName string          `json:"controller_name,omitempty"`
	DLOID          json.RawMessage `json:"dloid_params,omitempty"`
}

// CreateResult is the outcome of a successful create.
type CreateResult struct {
	BlockchainID   string
	ControllerName string
	// DLOID is the record CloudManager echoed back, when it could be parsed.
	DLOID    *dloid.Fields
	RawDLOID json.RawMessage
	// Compatibility is the verdict that gated the call. Warning mirrors
	// Compatibility.Warning for callers that only want the flag.
	Compatibility compat.Verdict
	Warning       bool
}

// ControllerNameRequest holds the inputs CloudManager uses to derive a name.
type ControllerNameRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	ExistingLicenses int    `json:"existing_licenses"`
	OwnerID          string `json:"user_uuid,omitempty"`
	ControllerRole   string `json:"controller_role,omitempty"`
}

// ControllerNameResult is the outcome of a successful name generation.
type ControllerNameResult struct {
	ControllerName string
	Compatibility  compat.Verdict
	Warning        bool
}
