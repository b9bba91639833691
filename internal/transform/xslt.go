package transform

import (
	"fmt"
	"sync"

	"github.com/wamuir/go-xslt"
)

// XSLTCompiler compiles stylesheets with libxslt.
type XSLTCompiler struct{}

func (XSLTCompiler) Compile(format string, body []byte) (Transformer, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty stylesheet for %s", format)
	}
	ss, err := xslt.NewStylesheet(body)
	if err != nil {
		return nil, fmt.Errorf("parsing stylesheet for %s: %w", format, err)
	}
	return &stylesheet{ss: ss}, nil
}

type stylesheet struct {
	mu sync.Mutex
	ss *xslt.Stylesheet
}

func (s *stylesheet) Transform(doc []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ss.Transform(doc)
}
