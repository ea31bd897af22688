package etfflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tokendash/tokendash/internal/table"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// normText canonicalizes scraped cell text: non-breaking and thin spaces
// become plain spaces, runs of whitespace collapse.
func normText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// cleanNum parses a scraped numeric cell. Blank cells and dash placeholders
// mean zero flow on this source, parenthesized values are negative, and
// anything unparsable is zero rather than an error.
func cleanNum(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", " ")
	switch s {
	case "", "-", "–", "—":
		return 0.0
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	s = strings.ReplaceAll(s, "−", "-")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return v
}

// findDateCol returns the index of the date column: a column literally
// named "date" wins, otherwise the column where the most cells parse as
// dates, provided more than 60% do. Returns -1 when no column qualifies.
func findDateCol(g *grid) int {
	for i, name := range g.header {
		if strings.EqualFold(strings.TrimSpace(name), "date") {
			return i
		}
	}
	best, bestRatio := -1, 0.0
	for i := range g.header {
		if len(g.rows) == 0 {
			break
		}
		parsed := 0
		for _, row := range g.rows {
			if _, err := table.ParseDay(row[i]); err == nil {
				parsed++
			}
		}
		ratio := float64(parsed) / float64(len(g.rows))
		if ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	if bestRatio > 0.6 {
		return best
	}
	return -1
}

// scoreTable ranks a candidate table by (rows, numeric columns). A column
// counts as numeric when over 20% of its cells clean to a nonzero value.
func scoreTable(g *grid) (int, int) {
	numeric := 0
	for i, name := range g.header {
		if strings.EqualFold(strings.TrimSpace(name), "date") {
			continue
		}
		nonzero := 0
		for _, row := range g.rows {
			if cleanNum(row[i]) != 0 {
				nonzero++
			}
		}
		if len(g.rows) > 0 && float64(nonzero)/float64(len(g.rows)) > 0.2 {
			numeric++
		}
	}
	return len(g.rows), numeric
}

// pickDailyTable returns the best-scoring table that has a detectable date
// column. Ties keep the first table encountered in document order.
func pickDailyTable(grids []*grid) *grid {
	var best *grid
	bestRows, bestNum := -1, -1
	for _, g := range grids {
		if findDateCol(g) < 0 {
			continue
		}
		rows, num := scoreTable(g)
		if rows > bestRows || (rows == bestRows && num > bestNum) {
			best, bestRows, bestNum = g, rows, num
		}
	}
	return best
}
