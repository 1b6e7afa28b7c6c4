package version

import (
	"os"
	"path/filepath"
	"text/template"
)

const infoTemplate = `package app_info

// NAME is the application name used for binaries, config and cache paths
const NAME = "{{ .NAME }}"

// VERSION is the current application version
const VERSION = "{{ .VERSION }}"
`

// TemplateGenerator implements the Generator interface using templates
type TemplateGenerator struct {
	outFile string
	outDir  string
}

// NewTemplateGenerator returns a new instance of TemplateGenerator
func NewTemplateGenerator(outFile string) *TemplateGenerator {
	return &TemplateGenerator{
		outFile: outFile,
		outDir:  filepath.Dir(outFile),
	}
}

// Generate writes the app-info source file for data
func (t *TemplateGenerator) Generate(data VersionData) error {
	if err := os.MkdirAll(t.outDir, 0751); err != nil {
		return err
	}

	tmpl, err := template.New("info").Parse(infoTemplate)

	if err != nil {
		return err
	}

	file, err := os.Create(t.outFile)

	if err != nil {
		return err
	}

	defer file.Close()

	return tmpl.Execute(file, data)
}
