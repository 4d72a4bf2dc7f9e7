package email

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer resolves Liquid placeholders ({{ name | default: "there" }}) per recipient.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template text -> *liquid.Template
}

// NewRenderer creates a renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ name | default: "there" }} also treats blank strings as missing.
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := strings.TrimSpace(fmt.Sprintf("%v", value)); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	// {{ name | first_name }}
	engine.RegisterFilter("first_name", func(s string) string {
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	})

	return &Renderer{engine: engine}
}

// Render returns the template text rendered with vars. On a parse or render
// error the original text is returned with the error.
func (r *Renderer) Render(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "{%") {
		return text, nil
	}

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(text); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(text)
		if err != nil {
			return text, fmt.Errorf("email: parse template: %w", err)
		}
		r.cache.Store(text, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return text, fmt.Errorf("email: render template: %w", err)
	}
	return out, nil
}
