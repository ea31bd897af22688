package etfflow

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/rotisserie/eris"
)

// grid is one extracted HTML table: a flat header plus data rows. Rows are
// padded or truncated to the header width.
type grid struct {
	header []string
	rows   [][]string
}

// parsePage parses the document and returns every table found in it,
// including tables nested inside other tables. The body passes through
// charset sniffing first; the source has served both UTF-8 and
// meta-declared legacy encodings over time.
func parsePage(body string) ([]*grid, error) {
	r, err := charset.NewReader(strings.NewReader(body), "text/html")
	if err != nil {
		return nil, eris.Wrap(err, "detect charset")
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}
	var grids []*grid
	collectTables(doc, &grids)
	return grids, nil
}

func collectTables(n *html.Node, out *[]*grid) {
	if n.Type == html.ElementNode && n.Data == "table" {
		if g := parseTable(n); g != nil {
			*out = append(*out, g)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTables(c, out)
	}
}

// parseTable flattens one table element into a grid. Leading rows made of
// header cells are joined cell-wise into a single flat header, the way a
// stacked two-row header reads to a human.
func parseTable(tbl *html.Node) *grid {
	var headerRows [][]string
	var dataRows [][]string
	inHeader := true

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "table":
				// nested tables are collected separately
			case "tr":
				cells, isHeader := parseRow(c)
				if len(cells) == 0 {
					continue
				}
				if isHeader && inHeader {
					headerRows = append(headerRows, cells)
				} else {
					inHeader = false
					dataRows = append(dataRows, cells)
				}
			default:
				walk(c)
			}
		}
	}
	walk(tbl)

	if len(headerRows) == 0 {
		if len(dataRows) == 0 {
			return nil
		}
		// headerless table: promote the first row
		headerRows, dataRows = dataRows[:1], dataRows[1:]
	}

	header := joinHeaderRows(headerRows)
	g := &grid{header: header, rows: make([][]string, 0, len(dataRows))}
	for _, row := range dataRows {
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		g.rows = append(g.rows, row[:len(header)])
	}
	return g
}

// parseRow extracts cell text from one tr, expanding colspans so column
// positions line up across rows. A row counts as header when every cell is
// a th.
func parseRow(tr *html.Node) ([]string, bool) {
	var cells []string
	isHeader := true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data != "td" && c.Data != "th" {
			continue
		}
		if c.Data == "td" {
			isHeader = false
		}
		text := normText(textContent(c))
		span := 1
		for _, attr := range c.Attr {
			if attr.Key == "colspan" {
				if n, err := strconv.Atoi(strings.TrimSpace(attr.Val)); err == nil && n > 1 {
					span = n
				}
			}
		}
		for range span {
			cells = append(cells, text)
		}
	}
	return cells, isHeader && len(cells) > 0
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// joinHeaderRows merges stacked header rows cell-wise, skipping repeats so
// a spanning group label does not duplicate into every joined name.
func joinHeaderRows(rows [][]string) []string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	header := make([]string, width)
	for i := range width {
		var parts []string
		for _, row := range rows {
			if i >= len(row) {
				continue
			}
			part := row[i]
			if part == "" || (len(parts) > 0 && parts[len(parts)-1] == part) {
				continue
			}
			parts = append(parts, part)
		}
		header[i] = strings.Join(parts, " ")
	}
	return header
}
