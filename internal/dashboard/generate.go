package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"infrasim/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

var templateFiles = []string{
	"grafana-dashboard.json.tmpl",
	"grafana-greptime-dashboard.json.tmpl",
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
func Render(outDir string) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"table": func(name string) (string, error) {
			switch name {
			case "component":
				return telemetry.ComponentTableName, nil
			case "global":
				return telemetry.GlobalTableName, nil
			case "failure":
				return telemetry.FailureTableName, nil
			case "chaos":
				return telemetry.ChaosTableName, nil
			case "state":
				return telemetry.StateTableName, nil
			case "score":
				return telemetry.ScoreTableName, nil
			}
			return "", fmt.Errorf("unknown table %q", name)
		},
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, tplName := range templateFiles {
		t, err := template.New(tplName).Funcs(funcMap).ParseFS(templates, "templates/"+tplName)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(tplName, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, nil); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
