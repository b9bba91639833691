// Package extract pulls field values out of raw bibliographic documents.
//
// For each catalog field the raw document is converted to the field's source
// format through the transform cache, then the field's XPath is evaluated
// against the converted document. Conversions are applied at most once per
// format for a given document.
package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/transform"
	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
)

// TransformSource resolves loaded format conversions and their namespace
// bindings.
type TransformSource interface {
	Get(ctx context.Context, format string) (*transform.Entry, error)
	Namespaces() map[string]string
}

// Engine evaluates catalog fields against raw documents. Compiled XPath
// expressions are cached for the lifetime of the Engine.
type Engine struct {
	source TransformSource
	mu     sync.RWMutex
	exprs  map[string]*xpath.Expr
	logger *slog.Logger
}

func NewEngine(source TransformSource) *Engine {
	return &Engine{
		source: source,
		exprs:  make(map[string]*xpath.Expr),
		logger: slog.Default().With("component", "extraction-engine"),
	}
}

// Prepare compiles the extraction path of every field so that a bad path
// fails the run before any record is touched.
func (e *Engine) Prepare(fields []catalog.FieldDefinition) error {
	for _, f := range fields {
		if _, err := e.compile(f.XPath); err != nil {
			return apperrors.Newf(apperrors.ErrTransformCompile, "field %s: %v", f.Key(), err)
		}
	}
	return nil
}

// Extract returns one value per field, keyed by "class|name". Every field
// key is present in the result; a field with no matches maps to an empty
// Value. A document that cannot be parsed or converted fails with
// ErrMalformedSourceDocument.
func (e *Engine) Extract(ctx context.Context, raw []byte, fields []catalog.FieldDefinition) (map[string]Value, error) {
	docs := make(map[string]*xmlquery.Node)
	out := make(map[string]Value, len(fields))

	for _, f := range fields {
		doc, err := e.document(ctx, docs, raw, f.Format)
		if err != nil {
			return nil, err
		}
		expr, err := e.compile(f.XPath)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrTransformCompile, "field %s: %v", f.Key(), err)
		}

		texts := evaluate(expr, doc)
		var v Value
		if f.Multi {
			v = List(texts...)
		} else {
			v = Scalar(strings.Join(texts, " "))
		}
		out[f.Key()] = v
		e.logger.Debug("extracted field", "field", f.Key(), "value", v.String())
	}
	return out, nil
}

// document returns raw in format, parsing and converting it on first use
// within a single Extract call.
func (e *Engine) document(ctx context.Context, docs map[string]*xmlquery.Node, raw []byte, format string) (*xmlquery.Node, error) {
	if doc, ok := docs[format]; ok {
		return doc, nil
	}
	entry, err := e.source.Get(ctx, format)
	if err != nil {
		return nil, err
	}
	converted, err := entry.Apply(raw)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedSourceDocument, "%v", err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(converted))
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedSourceDocument, "parsing %s document: %v", format, err)
	}
	if err := singleRoot(converted); err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedSourceDocument, "parsing %s document: %v", format, err)
	}
	docs[format] = doc
	return doc, nil
}

// singleRoot rejects a second top-level element or non-blank text outside
// the root element, both of which xmlquery.Parse accepts. Tokenizer errors
// are left to the parser that already ran.
func singleRoot(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return errors.New("content after root element")
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return errors.New("text outside root element")
			}
		}
	}
}

func (e *Engine) compile(path string) (*xpath.Expr, error) {
	e.mu.RLock()
	expr, ok := e.exprs[path]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := xpath.CompileWithNS(path, e.source.Namespaces())
	if err != nil {
		return nil, fmt.Errorf("compiling xpath %q: %w", path, err)
	}
	e.mu.Lock()
	e.exprs[path] = expr
	e.mu.Unlock()
	return expr, nil
}

// evaluate returns the non-empty text of every match of expr.
func evaluate(expr *xpath.Expr, doc *xmlquery.Node) []string {
	var texts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			texts = append(texts, s)
		}
	}

	switch res := expr.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
	case *xpath.NodeIterator:
		for res.MoveNext() {
			nav := res.Current().(*xmlquery.NodeNavigator)
			if nav.NodeType() == xpath.AttributeNode {
				add(nav.Value())
				continue
			}
			add(nodeText(nav.Current()))
		}
	case string:
		add(res)
	case float64:
		add(strconv.FormatFloat(res, 'f', -1, 64))
	case bool:
		add(strconv.FormatBool(res))
	}
	return texts
}

// nodeText joins the trimmed, non-empty descendant text of n with spaces.
func nodeText(n *xmlquery.Node) string {
	var parts []string
	var walk func(*xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		switch n.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		case xmlquery.CommentNode:
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
