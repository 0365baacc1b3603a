package selector

import "github.com/csotherden/luminal/symbolic"

// DimKind tags a Dim as a fixed value or an unbound unification variable.
type DimKind uint8

const (
	DimKnownKind DimKind = iota
	DimUnknownKind
)

// Dim is one entry of a shape-pattern signature: either a concrete
// symbolic expression the matched axis must equal, or a named variable
// ('A', 'B', ...) that must resolve to the same value everywhere it
// appears across the whole selector. Go has no native closed sum type, so
// this is a tagged struct rather than an enum.
type Dim struct {
	Kind   DimKind
	Known  symbolic.CompactExpr
	Symbol byte
}

// DimK builds a known-dimension pattern entry.
func DimK(e symbolic.CompactExpr) Dim {
	return Dim{Kind: DimKnownKind, Known: e}
}

// DimU builds an unknown (unification variable) pattern entry.
func DimU(symbol byte) Dim {
	return Dim{Kind: DimUnknownKind, Symbol: symbol}
}
