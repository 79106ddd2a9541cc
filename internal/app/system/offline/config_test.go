package offline_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
)

func TestDefaultConfig(t *testing.T) {
	cfg := offline.DefaultConfig("http://localhost:3000/")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	want := []string{"farma-static-v2", "farma-dynamic-v2", "farma-images-v2"}
	got := cfg.PartitionNames()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PartitionNames()[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
	if len(cfg.Manifests.Images) != 10 {
		t.Errorf("image manifest: got %d entries, want 10", len(cfg.Manifests.Images))
	}
}

func TestResolve(t *testing.T) {
	cfg := offline.DefaultConfig("http://localhost:3000/")
	tests := map[string]string{
		"/":                         "http://localhost:3000/",
		"lab-robot-arm-flask.jpg":   "http://localhost:3000/lab-robot-arm-flask.jpg",
		"/index.html#topo":          "http://localhost:3000/index.html",
		"https://unpkg.com/aos.css": "https://unpkg.com/aos.css",
		"/api/busca?q=dipirona":     "http://localhost:3000/api/busca?q=dipirona",
	}
	for in, want := range tests {
		got, err := cfg.Resolve(in)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := offline.Config{
		Prefix:  "guia-farma",
		Version: "",
		Origin:  "/relative",
		Manifests: offline.Manifests{
			Static: []string{"/", "/"},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, part := range []string{"version is empty", "must not contain", "absolute URL", "twice"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error %q does not mention %q", err, part)
		}
	}
}

func TestLoadManifests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	body := `{"static":["/","/index.html"],"scripts":["/js/i18n.js"],"images":["target-arrow.jpg"]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := offline.LoadManifests(path)
	if err != nil {
		t.Fatalf("LoadManifests failed: %v", err)
	}
	if len(m.Static) != 2 || m.Scripts[0] != "/js/i18n.js" || m.Images[0] != "target-arrow.jpg" {
		t.Errorf("manifests: got %+v", m)
	}

	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := offline.LoadManifests(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestAllows(t *testing.T) {
	cfg := offline.DefaultConfig("http://localhost:3000/")
	tests := []struct {
		url  string
		want bool
	}{
		{"http://localhost:3000/index.html", true},
		{"http://LOCALHOST:3000/api/busca", true},
		{"https://cdn.jsdelivr.net/npm/anything.js", true},
		{"https://fonts.gstatic.com/s/roboto/v30/a.woff2", true},
		{"https://www.google-analytics.com/analytics.js", true},
		{"http://localhost:8080/", false},
		{"https://localhost:3000/", false},
		{"http://169.254.169.254/latest/meta-data/", false},
		{"file:///etc/passwd", false},
		{"/relative", false},
	}
	for _, tt := range tests {
		if got := cfg.Allows(tt.url); got != tt.want {
			t.Errorf("Allows(%q): got %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestValidate_ExtraHosts(t *testing.T) {
	cfg := offline.DefaultConfig("http://localhost:3000/")
	cfg.ExtraHosts = []string{"fonts.gstatic.com"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "extra host") {
		t.Errorf("expected extra host error, got %v", err)
	}
}
