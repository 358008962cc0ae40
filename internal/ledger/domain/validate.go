package domain

// ValidateBalanced checks debits equal credits. Zero lines are dropped by callers.
func ValidateBalanced(lines []Line) error {
	var debit, credit int64
	for _, line := range lines {
		switch line.Direction {
		case Debit:
			debit += line.Amount
		case Credit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}

// Compact drops zero lines and merges lines hitting the same account and direction.
func Compact(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := map[Line]int{}
	for _, line := range lines {
		if line.Amount == 0 {
			continue
		}
		key := Line{Account: line.Account, Direction: line.Direction}
		if i, ok := index[key]; ok {
			out[i].Amount += line.Amount
			continue
		}
		index[key] = len(out)
		out = append(out, line)
	}
	return out
}
