package config

import "testing"

func TestParseStaticFile_MissingFileIsNotError(t *testing.T) {
	sf, err := LoadStaticFile("/nonexistent/path/config.yml")
	if err != nil {
		t.Fatalf("expected missing file to be treated as empty config, got error: %v", err)
	}
	if len(sf.Registries) != 0 {
		t.Fatalf("expected empty registries, got %+v", sf.Registries)
	}
}

func TestParseStaticFile_NestedStructure(t *testing.T) {
	sf, err := ParseStaticFile([]byte(`
registries:
  myregistry:
    enable: true
    port: 5000
    default:
      schedule: "0 3 * * *"
      revisions: "10"
    rule:
      nightly:
        schedule: "0 2 * * *"
        tag.pattern: "nightly-.+"
        age.min: 2d
`))
	if err != nil {
		t.Fatalf("ParseStaticFile: %v", err)
	}
	flat := sf.Registries["myregistry"]

	want := map[string]string{
		"enable":                         "true",
		"port":                           "5000",
		"default.schedule":               "0 3 * * *",
		"default.revisions":              "10",
		"rule.nightly.schedule":          "0 2 * * *",
		"rule.nightly.tag.pattern":       "nightly-.+",
		"rule.nightly.age.min":           "2d",
	}
	for k, v := range want {
		got, ok := flat[k]
		if !ok {
			t.Errorf("missing flattened key %q", k)
			continue
		}
		if got != v {
			t.Errorf("key %q: got %q, want %q", k, got, v)
		}
	}
	if len(flat) != len(want) {
		t.Errorf("got %d flattened keys, want %d: %+v", len(flat), len(want), flat)
	}
}

func TestParseStaticFile_NullValueDisablesPolicy(t *testing.T) {
	sf, err := ParseStaticFile([]byte(`
registries:
  r:
    default:
      revisions: null
`))
	if err != nil {
		t.Fatalf("ParseStaticFile: %v", err)
	}
	v, ok := sf.Registries["r"]["default.revisions"]
	if !ok {
		t.Fatal("expected default.revisions key to be present")
	}
	if v != "" {
		t.Errorf("expected null to flatten to empty string (disables without fallback), got %q", v)
	}
}

func TestParseStaticFile_EmptyDocument(t *testing.T) {
	sf, err := ParseStaticFile(nil)
	if err != nil {
		t.Fatalf("ParseStaticFile(nil): %v", err)
	}
	if len(sf.Registries) != 0 {
		t.Errorf("expected no registries for empty document, got %+v", sf.Registries)
	}
}

func TestMergeFlat_StaticWins(t *testing.T) {
	label := map[string]string{"a": "from-label", "b": "label-only"}
	static := map[string]string{"a": "from-static", "c": "static-only"}

	got := mergeFlat(label, static)

	if got["a"] != "from-static" {
		t.Errorf("a: got %q, want from-static", got["a"])
	}
	if got["b"] != "label-only" {
		t.Errorf("b: got %q, want label-only", got["b"])
	}
	if got["c"] != "static-only" {
		t.Errorf("c: got %q, want static-only", got["c"])
	}
}
