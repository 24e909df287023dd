// Package render turns a named configuration template plus a typed context
// into a finished document. Rendering is pure; nothing here touches the
// host.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateSyntax   = errors.New("template syntax error")
)

//go:embed templates
var templateFS embed.FS

// Renderer identifiers for the fixed template set shipped with the binary.
const (
	TemplateSlurmConf         = "slurm.conf"
	TemplateSlurmdbdConf      = "slurmdbd.conf"
	TemplateNHCConf           = "nhc.conf"
	TemplateConfiglessDefault = "configless.default"
	TemplateNofileOverride    = "override.conf"
)

var templateNames = map[string]string{
	TemplateSlurmConf:         "templates/slurm.conf.tmpl",
	TemplateSlurmdbdConf:      "templates/slurmdbd.conf.tmpl",
	TemplateNHCConf:           "templates/nhc.conf.tmpl",
	TemplateConfiglessDefault: "templates/configless.default.tmpl",
	TemplateNofileOverride:    "templates/override.conf.tmpl",
}

// NHCContext drives the nhc.conf template.
type NHCContext struct {
	MungeUser    string
	ExtraConfigs []string
}

// ConfiglessContext drives the /etc/default drop-in for configless slurmd.
type ConfiglessContext struct {
	Host string
	Port string
}

type Renderer struct {
	fs    fs.FS
	names map[string]string
}

func NewRenderer() *Renderer {
	return &Renderer{fs: templateFS, names: templateNames}
}

// Render applies data to the named template. Identical name and data always
// yield identical output. An unknown name returns ErrTemplateNotFound; a
// malformed template, or one referencing a field the context doesn't have,
// returns ErrTemplateSyntax.
func (r *Renderer) Render(name string, data any) (string, error) {
	path, ok := r.names[name]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrTemplateNotFound, name)
	}
	raw, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateNotFound, name)
	}
	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateSyntax, err)
	}
	result := bytes.NewBuffer([]byte{})
	if err := tmpl.Execute(result, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateSyntax, err)
	}
	return result.String(), nil
}
