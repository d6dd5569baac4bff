package culture

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/bejimenez/magus/internal/domain"
)

//go:embed templates/*.yaml
var embedded embed.FS

// ErrNoTemplates is returned when a source contains no template files.
var ErrNoTemplates = errors.New("culture: no template files found")

// Embedded exposes the built-in culture templates.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(fmt.Sprintf("culture: embedded templates unavailable: %v", err))
	}
	return sub
}

// Loader reads culture templates from a filesystem.
type Loader struct {
	fsys   fs.FS
	logger *zap.Logger
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger used for load diagnostics.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader builds a loader over fsys. A nil fsys uses the embedded templates.
func NewLoader(fsys fs.FS, opts ...LoaderOption) *Loader {
	if fsys == nil {
		fsys = Embedded()
	}
	l := &Loader{fsys: fsys, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// NewDirLoader builds a loader for a template directory on disk, falling back to the
// embedded templates when dir is empty.
func NewDirLoader(dir string, opts ...LoaderOption) *Loader {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return NewLoader(nil, opts...)
	}
	return NewLoader(os.DirFS(dir), opts...)
}

// Load parses and validates every template file and returns a registry.
func (l *Loader) Load() (*Registry, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("culture: read template dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsTemplateFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, ErrNoTemplates
	}
	sort.Strings(names)

	templates := make([]domain.CultureTemplate, 0, len(names))
	for _, name := range names {
		file, err := l.fsys.Open(name)
		if err != nil {
			return nil, fmt.Errorf("culture: open %s: %w", name, err)
		}
		tpl, err := Parse(file)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("culture: %s: %w", name, err)
		}
		l.logger.Debug("culture template parsed", zap.String("file", name), zap.String("code", tpl.Code))
		templates = append(templates, tpl)
	}

	reg, err := NewRegistry(templates...)
	if err != nil {
		return nil, err
	}
	l.logger.Info("culture templates loaded", zap.Strings("codes", reg.Codes()))
	return reg, nil
}

// Parse decodes one YAML template, applies defaults and validates it.
func Parse(r io.Reader) (domain.CultureTemplate, error) {
	var doc document
	decoder := yaml.NewDecoder(r, yaml.Strict())
	if err := decoder.Decode(&doc); err != nil {
		return domain.CultureTemplate{}, fmt.Errorf("decode template yaml: %w", err)
	}

	doc.applyDefaults()
	tpl := doc.toTemplate()

	if err := Validate(tpl); err != nil {
		return domain.CultureTemplate{}, err
	}
	return tpl, nil
}

// IsTemplateFile reports whether the file name looks like a template document.
func IsTemplateFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
