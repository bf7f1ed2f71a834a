// Package packsize resolves raw supplier pack-size strings such as "12 X 1",
// "6/1" or "40/35" into a (pack, size) pair and numeric multipliers.
package packsize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	packSizeTokens = regexp.MustCompile(`([0-9#\.]+)|([ Xx&\/@\-]+)`)
	groupingTokens = regexp.MustCompile(`([0-9\.]+)|([ Xx&\/\-]+)`)
	separatorToken = regexp.MustCompile(`([ Xx&\/@\-]+)`)
)

// candidate is one way of splitting a pack-size string at a separator token.
type candidate struct {
	sep   string
	left  string
	right string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Pack         string  `json:"pack"`
	Size         string  `json:"size"`
	PackQuantity float64 `json:"pack_quantity"`
	SizeQuantity float64 `json:"size_quantity"`
}

// ParsePackSize splits packSize into its pack and size halves.
// When no separator scores at least 1 the result is ("1", packSize).
func ParsePackSize(packSize, uom string, rules Rules) (pack, size string) {
	tokens := tokenize(packSizeTokens, packSize)
	candidates := splitCandidates(tokens)

	best := selectCandidate(candidates, rules, strings.ToLower(uom))
	if best < 0 {
		return "1", packSize
	}

	pack, size = candidates[best].left, candidates[best].right
	if pack == "" {
		pack = "1"
	}
	if size == "" {
		size = "1"
	}
	return pack, size
}

// Resolve runs ParsePackSize and turns each half into a multiplier.
func Resolve(packSize, uom string, rules Rules) Resolution {
	pack, size := ParsePackSize(packSize, uom, rules)
	return Resolution{
		Pack:         pack,
		Size:         size,
		PackQuantity: ProcessGrouping(pack, true, uom),
		SizeQuantity: ProcessGrouping(size, false, uom),
	}
}

// tokenize returns the numeric and separator tokens of s, trimmed and lower-cased.
// A separator made only of whitespace becomes a single space.
func tokenize(pattern *regexp.Regexp, s string) []string {
	matches := pattern.FindAllString(s, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tok := strings.ToLower(strings.TrimSpace(m))
		if tok == "" {
			tok = " "
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func isSeparator(tok string) bool {
	return separatorToken.MatchString(tok)
}

func splitCandidates(tokens []string) []candidate {
	var candidates []candidate
	for j, tok := range tokens {
		if !isSeparator(tok) {
			continue
		}
		candidates = append(candidates, candidate{
			sep:   tok,
			left:  strings.Join(tokens[:j], ""),
			right: strings.Join(tokens[j+1:], ""),
		})
	}
	return candidates
}

// selectCandidate scores every candidate and returns the index of the winner,
// or -1. The first candidate to reach a new maximum wins, so ties keep the
// earliest separator.
func selectCandidate(candidates []candidate, rules Rules, uom string) int {
	best := -1
	max := 1
	for j, c := range candidates {
		priority := rules.separatorPriority(c.sep)
		if rules == RulesKeany && priority == 1 && uom == "pt (u.s.)" {
			priority = -1
		}

		if priority == 1 && len(candidates) == 1 && isSizeRange(c) {
			priority = 0
		}
		priority = singleGroupingPriority(candidates, priority, rules, uom)

		if priority > max || (best < 0 && priority >= max) {
			max = priority
			best = j
		}
	}
	return best
}

// isSizeRange reports whether a candidate reads as a range of two close, large
// numbers ("40/35") rather than a pack times size.
func isSizeRange(c candidate) bool {
	num1, err := parseNumber(c.left)
	if err != nil {
		return false
	}
	num2, err := parseNumber(strings.TrimSpace(strings.ReplaceAll(c.right, "#", " ")))
	if err != nil {
		return false
	}
	return num1 != num2 && closeLargeNumbers(num1, num2)
}

func closeLargeNumbers(num1, num2 float64) bool {
	return num1 >= 30 && num2 >= 30 && math.Abs(num1-num2) <= 20
}

// singleGroupingPriority demotes a lone "-" or "/" split of a count unit whose
// first number is smaller than the second. Coastal Sunbelt keeps a priority-1
// split unless it is also a close range.
func singleGroupingPriority(candidates []candidate, priority int, rules Rules, uom string) int {
	if len(candidates) != 1 {
		return priority
	}
	c := candidates[0]
	if c.sep != "-" && c.sep != "/" {
		return priority
	}
	if uom != "ct" && uom != "cs" {
		return priority
	}

	num1, err := parseNumber(c.left)
	if err != nil {
		return priority
	}
	num2, err := parseNumber(c.right)
	if err != nil {
		return priority
	}
	if num1 >= num2 {
		return priority
	}

	if rules == RulesCoastalSunbelt && priority == 1 {
		if closeLargeNumbers(num1, num2) {
			return -1
		}
		return priority
	}
	return -1
}

// ProcessGrouping turns one half of a pack size into a single multiplier.
// Non-pack halves get unit conversions first: "#10" cans count as 1, lb2oz
// units become total ounces and dozens become units. Tokens that do not parse
// are ignored; a grouping without any number yields 1.
func ProcessGrouping(grouping string, isPack bool, uom string) float64 {
	tenCan := strings.Contains(grouping, "#10")
	poundsOunces := strings.Contains(uom, "lb2oz")
	dozen := uom == "dozen"

	if (tenCan || poundsOunces || dozen) && !isPack {
		if poundsOunces {
			if v, err := parseNumber(grouping); err == nil {
				grouping = formatNumber(v*16 + 2)
			}
		}
		if dozen {
			if v, err := parseNumber(grouping); err == nil {
				grouping = formatNumber(v * 12)
			}
		}
		grouping = strings.ReplaceAll(grouping, "#10", "1")
	}

	tokens := tokenize(groupingTokens, grouping)
	if len(tokens) == 1 {
		if isSeparator(tokens[0]) {
			return 1
		}
		if v, err := parseNumber(tokens[0]); err == nil {
			return v
		}
		return 1
	}
	return combineTokens(tokens, isPack)
}

func combineTokens(tokens []string, isPack bool) float64 {
	if len(tokens) == 3 && isSeparator(tokens[1]) {
		num1, err1 := parseNumber(tokens[0])
		num2, err2 := parseNumber(tokens[2])
		if err1 == nil && err2 == nil {
			if tokens[1] != "/" {
				return math.Max(num1, num2)
			}
			switch {
			case num1 >= 30 && num2 >= 30:
				return math.Max(num1, num2)
			case (num1 > 9 && num2 > 10) || isPack:
				return num1 * num2
			case num2 == 0:
				return num1
			default:
				return num1 / num2
			}
		}
	}

	max := math.Inf(-1)
	for _, tok := range tokens {
		if isSeparator(tok) {
			continue
		}
		if v, err := parseNumber(tok); err == nil && v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return 1
	}
	return max
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
