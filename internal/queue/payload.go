package queue

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"scalpbot/internal/models"
)

type CloseMode string

const (
	ModePaper CloseMode = "PAPER"
	ModeLive  CloseMode = "LIVE"
)

// PairPayload is the payload shape for PAUSE_PAIR, RESUME_PAIR and CLOSE_PAIR.
// Mode applies to CLOSE_PAIR only and defaults to PAPER.
type PairPayload struct {
	Pair string    `json:"pair"`
	Mode CloseMode `json:"mode,omitempty"`
}

// CloseAllPayload is the payload shape for CLOSE_ALL. Modes defaults to both
// legs; Pairs lists the instruments the LIVE leg should close.
type CloseAllPayload struct {
	Modes []CloseMode `json:"modes,omitempty"`
	Pairs []string    `json:"pairs,omitempty"`
}

func DecodePairPayload(raw datatypes.JSON) (PairPayload, error) {
	var p PairPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	p.Pair = strings.ToUpper(strings.TrimSpace(p.Pair))
	p.Mode = CloseMode(strings.ToUpper(strings.TrimSpace(string(p.Mode))))
	if p.Mode == "" {
		p.Mode = ModePaper
	}
	return p, nil
}

func DecodeCloseAllPayload(raw datatypes.JSON) (CloseAllPayload, error) {
	p := CloseAllPayload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, err
		}
	}
	if len(p.Modes) == 0 {
		p.Modes = []CloseMode{ModePaper, ModeLive}
	}
	for i, m := range p.Modes {
		p.Modes[i] = CloseMode(strings.ToUpper(strings.TrimSpace(string(m))))
	}
	return p, nil
}

func (p CloseAllPayload) HasMode(mode CloseMode) bool {
	for _, m := range p.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// MarshalResult renders a handler result map as the JSON column value.
func MarshalResult(result map[string]any) datatypes.JSON {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func ValidType(t models.CommandType) bool {
	_, ok := models.AllowedCommandTypes()[t]
	return ok
}
