package stats

import (
	"bytes"
	"encoding/json"

	"chauffe/internal/dloid"
)

// Entry is the subset of a blockchain the summary needs.
type Entry struct {
	ID                  string
	Name                string
	ControllerName      string
	ControllerRole      string
	CreatedAt           string
	DLOID               json.RawMessage
	GenesisDLOID        string
	Blocks              int
	PendingTransactions int
}

// Controller is one named controller in a summary.
type Controller struct {
	BlockchainID   string `json:"blockchain_id"`
	ControllerName string `json:"controller_name"`
	ControllerRole string `json:"controller_role"`
	CreatedAt      string `json:"created_at,omitempty"`
	BlockchainName string `json:"blockchain_name"`
}

// Parameter is the decoded DLOID of one blockchain in a summary.
type Parameter struct {
	BlockchainID string        `json:"blockchain_id"`
	GenesisDLOID string        `json:"dloid_hex,omitempty"`
	Params       *dloid.Record `json:"dloid_params,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
}

// Summary aggregates one owner's blockchains.
type Summary struct {
	OwnerID           string        `json:"user_uuid"`
	TotalBlockchains  int           `json:"total_blockchains"`
	TotalBlocks       int           `json:"total_blocks"`
	TotalTransactions int           `json:"total_transactions"`
	TotalChauffecoins uint64        `json:"total_chauffecoins"`
	Controllers       []Controller  `json:"controller_names"`
	Parameters        []Parameter   `json:"dloid_parameters"`
	Skipped           int           `json:"skipped"`
	Errors            []RecordError `json:"errors,omitempty"`
	Overflow          bool          `json:"overflow,omitempty"`
}

// Summarize builds the owner summary. DLOID strings prefixed with the
// controller name are accepted. Entries whose DLOID is malformed still count
// toward blockchain, block and transaction totals; only their quantity is
// skipped.
func Summarize(ownerID string, entries []Entry) Summary {
	s := Summary{
		OwnerID:          ownerID,
		TotalBlockchains: len(entries),
		Controllers:      []Controller{},
		Parameters:       []Parameter{},
	}

	raws := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		s.TotalBlocks += e.Blocks
		s.TotalTransactions += e.PendingTransactions

		if e.ControllerName != "" {
			role := e.ControllerRole
			if role == "" {
				role = "Unknown"
			}
			name := e.Name
			if name == "" {
				name = "Unknown"
			}
			s.Controllers = append(s.Controllers, Controller{
				BlockchainID:   e.ID,
				ControllerName: e.ControllerName,
				ControllerRole: role,
				CreatedAt:      e.CreatedAt,
				BlockchainName: name,
			})
		}

		raw := stripControllerJSON(e.DLOID, e.ControllerName)
		raws = append(raws, raw)

		p := Parameter{BlockchainID: e.ID, GenesisDLOID: e.GenesisDLOID, CreatedAt: e.CreatedAt}
		if f, err := dloid.Normalize(raw); err == nil {
			p.Params = &dloid.Record{Fields: f}
		}
		s.Parameters = append(s.Parameters, p)
	}

	res := AggregateRaw(raws)
	s.TotalChauffecoins = res.Total
	s.Skipped = res.Skipped
	s.Errors = res.Errors
	s.Overflow = res.Overflow
	return s
}

func stripControllerJSON(raw json.RawMessage, controller string) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if controller == "" || len(trimmed) == 0 || trimmed[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return raw
	}
	out, err := json.Marshal(dloid.StripController(s, controller))
	if err != nil {
		return raw
	}
	return out
}
