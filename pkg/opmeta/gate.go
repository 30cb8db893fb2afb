package opmeta

import (
	"fmt"

	"go.uber.org/zap"
)

// Mode decides what the gate does with invalid metadata
type Mode string

const (
	// ModeStrict rejects invalid metadata. Code generation and production
	// servers use it.
	ModeStrict Mode = "strict"
	// ModeWarn logs invalid metadata and continues with it as declared.
	ModeWarn Mode = "warn"
)

// ParseMode parses a gate mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict:
		return ModeStrict, nil
	case ModeWarn:
		return ModeWarn, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (want strict or warn)", s)
	}
}

// Gate validates metadata at definition time
type Gate struct {
	mode   Mode
	logger *zap.Logger
}

// NewGate creates a gate. A nil logger discards warnings.
func NewGate(mode Mode, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeStrict
	}
	return &Gate{mode: mode, logger: logger}
}

// Mode returns the gate's mode
func (g *Gate) Mode() Mode {
	return g.mode
}

// Check validates typed metadata. In strict mode an invalid declaration is
// returned as *ValidationErrors; in warn mode it is logged and returned as is.
func (g *Gate) Check(meta *OpMeta) (*OpMeta, error) {
	return g.settle(meta, Validate(meta))
}

// CheckCandidate decodes and validates a loosely typed candidate
func (g *Gate) CheckCandidate(candidate map[string]any) (*OpMeta, error) {
	meta, verrs := Decode(candidate)
	if verrs == nil {
		verrs = Validate(meta)
	} else {
		verrs.Merge(Validate(meta))
	}
	return g.settle(meta, verrs)
}

func (g *Gate) settle(meta *OpMeta, verrs *ValidationErrors) (*OpMeta, error) {
	if !verrs.HasErrors() {
		return meta, nil
	}
	if g.mode == ModeStrict {
		return nil, verrs
	}

	g.logger.Warn("invalid operation metadata, continuing without validation",
		zap.String("op", verrs.Op),
		zap.Int("errors", verrs.Count()),
		zap.Any("fields", verrs.Fields),
	)
	return meta, nil
}
