package ot

import "fmt"

// Transform adjusts a against b, where b has already been applied to the
// document and a was produced against the pre-b state. The result is safe
// to apply after b. Pure function, total over the closed operation set.
//
// Tie-break: when two inserts target the same position, the adjusted
// operation keeps its position and its text ends up before b's. The rule is
// fixed; it never depends on arrival order.
func Transform(a, b Operation) (Operation, error) {
	// Noop carries nothing to adjust and adjusts nothing.
	if a.Kind == KindNoop {
		return Noop(), nil
	}
	if b.Kind == KindNoop {
		return a, nil
	}

	switch a.Kind {
	case KindInsert:
		switch b.Kind {
		case KindInsert:
			return transformInsertInsert(a, b), nil
		case KindDelete:
			return transformInsertDelete(a, b), nil
		}
	case KindDelete:
		switch b.Kind {
		case KindInsert:
			return transformDeleteInsert(a, b), nil
		case KindDelete:
			return transformDeleteDelete(a, b), nil
		}
	}
	return Operation{}, fmt.Errorf("%w: transform(%v, %v)", ErrUnsupported, a.Kind, b.Kind)
}

func transformInsertInsert(a, b Operation) Operation {
	if a.Pos > b.Pos {
		a.Pos += b.textLen()
	}
	// Equal positions: a keeps its place, landing before b's text.
	return a
}

func transformInsertDelete(a, b Operation) Operation {
	switch {
	case a.Pos <= b.Pos:
		return a
	case a.Pos >= b.Pos+b.Len:
		a.Pos -= b.Len
		return a
	default:
		// Insert landed inside the deleted range; it collapses to the
		// start of that range.
		a.Pos = b.Pos
		return a
	}
}

func transformDeleteInsert(a, b Operation) Operation {
	switch {
	case b.Pos <= a.Pos:
		a.Pos += b.textLen()
		return a
	case b.Pos < a.Pos+a.Len:
		// Insert landed inside a's range, so a grows to still remove it.
		a.Len += b.textLen()
		return a
	default:
		return a
	}
}

func transformDeleteDelete(a, b Operation) Operation {
	aStart, aEnd := a.Pos, a.Pos+a.Len
	bStart, bEnd := b.Pos, b.Pos+b.Len
	switch {
	case aEnd <= bStart:
		// a wholly before b.
		return a
	case aStart >= bEnd:
		// a wholly after b.
		return deleteOrNoop(aStart-b.Len, a.Len)
	case aStart <= bStart && aEnd >= bEnd:
		// b wholly inside a; identical ranges annihilate here too.
		return deleteOrNoop(aStart, a.Len-b.Len)
	case bStart <= aStart && bEnd >= aEnd:
		// a wholly inside b: everything a would remove is already gone.
		return Noop()
	case aStart < bStart:
		// a starts first, partial overlap: only a's prefix survives.
		return deleteOrNoop(aStart, bStart-aStart)
	default:
		// b starts first, partial overlap: only a's suffix survives.
		return deleteOrNoop(bStart, a.Len-(bEnd-aStart))
	}
}

// deleteOrNoop collapses non-positive residual lengths to Noop so a delete
// length can never go negative.
func deleteOrNoop(pos, length int) Operation {
	if length <= 0 {
		return Noop()
	}
	return Operation{Kind: KindDelete, Pos: pos, Len: length}
}
