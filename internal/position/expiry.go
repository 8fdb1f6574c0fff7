package position

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Trading-symbol expiry heuristics. Monthly contracts encode a two-digit
// year and a three-letter month (NIFTY25JUL24000CE, expiring on the last
// day of July 2025). Weekly contracts pack five digits as year, single-digit
// month, and two-digit day (NIFTY2570324500CE is 2025-07-03). The weekly
// form is ambiguous for two-digit months, so derivation is best-effort: a
// symbol that fails to parse is kept, never dropped.

var (
	monthlyExpiryRe = regexp.MustCompile(`^(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)`)
	weeklyExpiryRe  = regexp.MustCompile(`^(\d{2})(\d)(\d{2})`)
)

var monthsByName = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// expiryFromSymbol derives a contract expiry date from its trading symbol.
// underlying is the prefix to strip; when empty, the leading letters are
// stripped instead. Returns false when no pattern matches.
func expiryFromSymbol(symbol, underlying string) (time.Time, bool) {
	rest := symbol
	if underlying != "" && strings.HasPrefix(symbol, underlying) {
		rest = symbol[len(underlying):]
	} else {
		i := 0
		for i < len(rest) && rest[i] >= 'A' && rest[i] <= 'Z' {
			i++
		}
		rest = rest[i:]
	}

	if m := monthlyExpiryRe.FindStringSubmatch(rest); m != nil {
		year, _ := strconv.Atoi(m[1])
		month := monthsByName[m[2]]
		// Monthly contracts expire on the last trading day of the month; the
		// calendar last day is a safe upper bound for cleanup.
		firstOfNext := time.Date(2000+year, month+1, 1, 0, 0, 0, 0, time.UTC)
		return firstOfNext.AddDate(0, 0, -1), true
	}

	if m := weeklyExpiryRe.FindStringSubmatch(rest); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 9 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		d := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if d.Day() != day {
			// Day overflowed the month, e.g. 2-31; the symbol does not
			// follow the expected packing.
			return time.Time{}, false
		}
		return d, true
	}

	return time.Time{}, false
}

// RemoveExpiredPositions drops every position whose derived expiry date is
// strictly before today. Expired positions generate no trade record; the
// broker has already settled them. Returns the count removed.
func (s *Store) RemoveExpiredPositions() int {
	s.mu.Lock()
	n := s.removeExpiredLocked()
	s.mu.Unlock()

	if n > 0 {
		s.firePositionsChanged()
	}
	return n
}

func (s *Store) removeExpiredLocked() int {
	today := s.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	n := 0
	for sym, p := range s.positions {
		expiry, ok := expiryFromSymbol(sym, p.Symbol)
		if !ok {
			s.log.Debug("no expiry derivable from symbol", "symbol", sym)
			continue
		}
		if expiry.Before(today) {
			s.log.Info("removing expired position", "symbol", sym, "expiry", expiry.Format("2006-01-02"))
			delete(s.positions, sym)
			n++
		}
	}
	return n
}
