package parser

import (
	"fmt"
	"iter"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/maltedev/shop-scraper/internal/models"
)

// ParseError reports a page that could not be turned into a document.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type compiledField struct {
	kind FieldKind
	sel  cascadia.Selector
	attr string
}

// ShopParser evaluates a compiled Selectors set against goquery documents.
type ShopParser struct {
	item  cascadia.Selector
	name  compiledField
	price compiledField
	image compiledField
}

func NewShopParser(s Selectors) (*ShopParser, error) {
	item, err := cascadia.Compile(s.Item)
	if err != nil {
		return nil, fmt.Errorf("invalid item selector %q: %w", s.Item, err)
	}

	p := &ShopParser{item: item}

	fields := []struct {
		name string
		in   Field
		out  *compiledField
	}{
		{"name", s.Name, &p.name},
		{"price", s.Price, &p.price},
		{"image", s.Image, &p.image},
	}
	for _, f := range fields {
		compiled, err := compileField(f.in)
		if err != nil {
			return nil, fmt.Errorf("invalid %s selector: %w", f.name, err)
		}
		*f.out = compiled
	}

	return p, nil
}

func compileField(f Field) (compiledField, error) {
	if f.Kind == Attr && f.Attr == "" {
		return compiledField{}, fmt.Errorf("attribute name is required for %q", f.CSS)
	}

	sel, err := cascadia.Compile(f.CSS)
	if err != nil {
		return compiledField{}, fmt.Errorf("%q: %w", f.CSS, err)
	}

	return compiledField{kind: f.Kind, sel: sel, attr: f.Attr}, nil
}

const (
	sniffLen = 1024
	// percentage of control bytes in the sniffed head above which a body is
	// treated as binary
	binaryThreshold = 10
)

// Extract parses html and yields one product per listing node. Nothing is
// read from the document until the sequence is ranged over.
func (p *ShopParser) Extract(html string) (iter.Seq[models.Product], error) {
	if strings.TrimSpace(html) == "" {
		return nil, &ParseError{Reason: "empty document"}
	}
	if looksBinary(html) {
		return nil, &ParseError{Reason: "binary content, not HTML"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{Reason: "failed to parse HTML", Err: err}
	}

	nodes := doc.FindMatcher(p.item)

	return func(yield func(models.Product) bool) {
		for i := range nodes.Length() {
			if !yield(p.extractProduct(nodes.Eq(i))) {
				return
			}
		}
	}, nil
}

func (p *ShopParser) extractProduct(s *goquery.Selection) models.Product {
	return models.Product{
		Name:     orUnknown(cleanText(p.name.value(s))),
		Price:    orUnknown(normalizePrice(p.price.value(s))),
		ImageURL: orUnknown(strings.TrimSpace(p.image.value(s))),
	}
}

func (f compiledField) value(s *goquery.Selection) string {
	match := s.FindMatcher(f.sel).First()
	if match.Length() == 0 {
		return ""
	}

	if f.kind == Attr {
		v, _ := match.Attr(f.attr)
		return v
	}
	return match.Text()
}

// looksBinary reports whether the head of the document is mostly control
// bytes. Stray NULs inside a real page are left to the HTML parser.
func looksBinary(s string) bool {
	head := s[:min(len(s), sniffLen)]

	control := 0
	for i := range len(head) {
		switch c := head[i]; {
		case c == '\t' || c == '\n' || c == '\r' || c == '\f':
		case c < 0x20 || c == 0x7f:
			control++
		}
	}
	return control*100 > len(head)*binaryThreshold
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizePrice drops currency symbols and whitespace: "$ 10.00" -> "10.00".
func normalizePrice(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func orUnknown(s string) string {
	if s == "" {
		return models.Unknown
	}
	return s
}
