package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "bizgate.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var file alertFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}
	if len(file.Groups) != 1 || file.Groups[0].Name != "bizgate" {
		t.Fatalf("expected a single bizgate alert group, got %+v", file.Groups)
	}

	expected := map[string]string{
		"HighErrorRate":           "critical",
		"AuthzDenialSpike":        "warning",
		"PermissionNotConfigured": "warning",
		"RefreshSweepFailing":     "warning",
	}
	rules := file.Groups[0].Rules
	if len(rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(rules))
	}
	for _, rule := range rules {
		severity, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if !strings.HasPrefix(rule.Annotations["runbook"], "docs/runbook.md#") {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if !strings.Contains(rule.Expr, "bizgate_") {
			t.Fatalf("rule %s must query bizgate metrics", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
	}
}
