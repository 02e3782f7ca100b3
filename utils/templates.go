package utils

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/edisonguo/jet"
)

// Templates renders the capabilities and coverage description
// documents from jet templates kept under <DataDir>/templates.
// Expression output is XML-escaped.
type Templates struct {
	mu   sync.Mutex
	view *jet.Set
}

func NewTemplates(dir string, development bool) *Templates {
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		xml.EscapeText(w, b)
	}), dir, "/")
	view.SetDevelopmentMode(development)
	return &Templates{view: view}
}

// DefaultTemplates loads the templates of DataDir.
func DefaultTemplates(development bool) *Templates {
	return NewTemplates(filepath.Join(DataDir, "templates"), development)
}

// Execute renders the template name with data as context.
func (t *Templates) Execute(w io.Writer, name string, data interface{}) error {
	t.mu.Lock()
	tpl, err := t.view.GetTemplate(name)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("Error trying to load template %s: %v", name, err)
	}

	vars := make(jet.VarMap)
	if err = tpl.Execute(w, vars, data); err != nil {
		return fmt.Errorf("Error executing template %s: %v", name, err)
	}
	return nil
}
