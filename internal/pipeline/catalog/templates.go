package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"

	"gopkg.in/yaml.v3"
)

// DefaultTemplate is the template used by EnsureDefaultPipeline.
const DefaultTemplate = "default"

//go:embed templates/*.yaml
var builtinTemplates embed.FS

// Template describes a pipeline and its initial stages.
type Template struct {
	Name     string `yaml:"name"`
	Pipeline struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Color       string `yaml:"color"`
	} `yaml:"pipeline"`
	Stages []TemplateStage `yaml:"stages"`
}

type TemplateStage struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	Probability int    `yaml:"probability"`
}

func (t Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(t.Pipeline.Name) == "" {
		return fmt.Errorf("template %s: pipeline name is required", t.Name)
	}
	if len(t.Stages) == 0 {
		return fmt.Errorf("template %s: at least one stage is required", t.Name)
	}
	for _, s := range t.Stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("template %s: stage name is required", t.Name)
		}
		if err := domain.ValidateProbability(s.Probability); err != nil {
			return fmt.Errorf("template %s: stage %s: %w", t.Name, s.Name, err)
		}
	}
	return nil
}

// Templates is a name-indexed set of pipeline templates.
type Templates map[string]Template

// Names returns the template names sorted.
func (t Templates) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTemplates reads the built-in templates and, when dir is set, every
// *.yaml file in it. Files in dir override built-ins with the same name.
func LoadTemplates(dir string) (Templates, error) {
	out := make(Templates)
	if err := loadTemplatesFS(builtinTemplates, "templates", out); err != nil {
		return nil, err
	}
	if dir == "" {
		return out, nil
	}
	if err := loadTemplatesFS(os.DirFS(dir), ".", out); err != nil {
		return nil, err
	}
	return out, nil
}

func loadTemplatesFS(fsys fs.FS, root string, out Templates) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read templates: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		f, err := fsys.Open(path.Join(root, entry.Name()))
		if err != nil {
			return err
		}
		var tpl Template
		err = yaml.NewDecoder(f).Decode(&tpl)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}
		if err := tpl.validate(); err != nil {
			return err
		}
		out[tpl.Name] = tpl
	}
	return nil
}
