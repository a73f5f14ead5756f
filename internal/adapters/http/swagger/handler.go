// Package swagger serves the OpenAPI document and a ReDoc page for it.
package swagger

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// Option adjusts the served document to a deployment.
type Option func(*settings)

type settings struct {
	serverURL string
	hideAdmin bool
}

// WithServerURL lists url as the only server, so the "try it" links and the
// result URLs handed to participants agree.
func WithServerURL(url string) Option {
	return func(s *settings) { s.serverURL = strings.TrimRight(url, "/") }
}

// WithoutAdmin drops the /admin operations from the published document.
func WithoutAdmin(hide bool) Option {
	return func(s *settings) { s.hideAdmin = hide }
}

// Register attaches the documentation routes to r.
//
//	GET /docs          -> ReDoc HTML
//	GET /openapi.yaml  -> OpenAPI document for this deployment
func Register(_ context.Context, r chi.Router, opts ...Option) {
	if r == nil {
		panic("router is nil")
	}
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	doc := render(OpenAPI, s)

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(doc)
	})
}

// render applies s to the embedded document. Key order is kept; a document
// that does not parse is served as embedded.
func render(src []byte, s settings) []byte {
	if s.serverURL == "" && !s.hideAdmin {
		return src
	}
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil || len(root.Content) == 0 {
		return src
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return src
	}

	if s.hideAdmin {
		if paths := lookup(top, "paths"); paths != nil && paths.Kind == yaml.MappingNode {
			kept := paths.Content[:0]
			for i := 0; i+1 < len(paths.Content); i += 2 {
				if strings.HasPrefix(paths.Content[i].Value, "/admin/") {
					continue
				}
				kept = append(kept, paths.Content[i], paths.Content[i+1])
			}
			paths.Content = kept
		}
	}

	if s.serverURL != "" {
		servers := &yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{{
			Kind: yaml.MappingNode,
			Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: "url"},
				{Kind: yaml.ScalarNode, Value: s.serverURL},
			},
		}}}
		if existing := lookup(top, "servers"); existing != nil {
			*existing = *servers
		} else {
			// after info, where readers expect it
			at := len(top.Content)
			for i := 0; i+1 < len(top.Content); i += 2 {
				if top.Content[i].Value == "info" {
					at = i + 2
				}
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Value: "servers"}
			top.Content = append(top.Content[:at], append([]*yaml.Node{key, servers}, top.Content[at:]...)...)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return src
	}
	if err := enc.Close(); err != nil {
		return src
	}
	return buf.Bytes()
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>foldboard API</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
