package tiles

// Code is a canonical six-symbol edge pattern over {A,F,V,R,L,T,S,G}.
type Code string

// Canonicalize returns the ordinally smallest rotation s[r:]+s[:r]. On ties
// the smallest r wins.
func Canonicalize(s string) string {
	best := s
	for r := 1; r < len(s); r++ {
		rot := s[r:] + s[:r]
		if rot < best {
			best = rot
		}
	}
	return best
}

// Rotations lists every rotation of c, starting with c itself.
func (c Code) Rotations() []Code {
	s := string(c)
	out := make([]Code, 0, len(s))
	for r := 0; r < len(s); r++ {
		out = append(out, Code(s[r:]+s[:r]))
	}
	return out
}

// Valid reports whether c has six known symbols.
func (c Code) Valid() bool {
	if len(c) != EdgeCount {
		return false
	}
	for i := 0; i < len(c); i++ {
		switch c[i] {
		case 'A', 'F', 'V', 'R', 'L', 'T', SymbolStation, SymbolGeneric:
		default:
			return false
		}
	}
	return true
}
