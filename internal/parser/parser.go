package parser

import (
	"iter"

	"github.com/maltedev/shop-scraper/internal/models"
)

// Extractor turns one listing page into product records.
type Extractor interface {
	Extract(html string) (iter.Seq[models.Product], error)
}

type FieldKind int

const (
	// Text reads the trimmed text content of the first match.
	Text FieldKind = iota
	// Attr reads an attribute of the first match.
	Attr
)

func (k FieldKind) String() string {
	switch k {
	case Text:
		return "text"
	case Attr:
		return "attr"
	default:
		return "unknown"
	}
}

// Field locates one value inside a listing node.
type Field struct {
	Kind FieldKind
	CSS  string
	Attr string
}

func TextField(css string) Field {
	return Field{Kind: Text, CSS: css}
}

func AttrField(css, attr string) Field {
	return Field{Kind: Attr, CSS: css, Attr: attr}
}

// Selectors describes the listing markup of a shop. Item matches one node
// per product; the fields are evaluated relative to that node.
type Selectors struct {
	Item  string
	Name  Field
	Price Field
	Image Field
}

// DefaultSelectors matches WooCommerce catalogue pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:  "ul.products > li.product",
		Name:  TextField(".woocommerce-loop-product__title"),
		Price: TextField(".price bdi"),
		Image: AttrField("img", "src"),
	}
}
