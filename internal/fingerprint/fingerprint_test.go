package fingerprint

import (
	"strings"
	"testing"
)

func TestHash_Deterministic(t *testing.T) {
	payload := map[string]any{
		"model":       "gpt-4o-mini",
		"temperature": 0.0,
		"ticket": map[string]any{
			"key":     "STORY-1",
			"summary": "Improve onboarding",
		},
	}

	first, err := Hash(payload)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := Hash(payload)
	if err != nil {
		t.Fatalf("Hash (second call): %v", err)
	}
	if first != second {
		t.Errorf("repeated Hash of same payload: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(first))
	}
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	// Maps built in different insertion orders must hash identically.
	a := map[string]any{}
	a["model"] = "gpt-4o-mini"
	a["version"] = "v1"
	a["project"] = "CAT"

	b := map[string]any{}
	b["project"] = "CAT"
	b["version"] = "v1"
	b["model"] = "gpt-4o-mini"

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash(a): %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash(b): %v", err)
	}
	if ha != hb {
		t.Errorf("key order changed digest: %s != %s", ha, hb)
	}
}

func TestHash_Sensitivity(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			"version":     "2024-11-epic-pack-v1",
			"model":       "gpt-4o-mini",
			"temperature": 0.0,
			"max_tokens":  1800,
			"ticket":      map[string]any{"key": "STORY-1", "summary": "Login flow"},
		}
	}

	baseline, err := Hash(base())
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	mutations := map[string]func(map[string]any){
		"model":          func(p map[string]any) { p["model"] = "gpt-4o" },
		"temperature":    func(p map[string]any) { p["temperature"] = 0.7 },
		"max_tokens":     func(p map[string]any) { p["max_tokens"] = 2000 },
		"prompt version": func(p map[string]any) { p["version"] = "2025-01-epic-pack-v2" },
		"ticket content": func(p map[string]any) {
			p["ticket"] = map[string]any{"key": "STORY-1", "summary": "Logout flow"}
		},
	}

	for name, mutate := range mutations {
		p := base()
		mutate(p)
		h, err := Hash(p)
		if err != nil {
			t.Fatalf("Hash after %s change: %v", name, err)
		}
		if h == baseline {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

func TestHash_ListOrderSignificant(t *testing.T) {
	ha, _ := Hash([]string{"a", "b"})
	hb, _ := Hash([]string{"b", "a"})
	if ha == hb {
		t.Error("list reordering should change the digest")
	}
}

func TestHashText(t *testing.T) {
	if got := HashText(""); got != "none" {
		t.Errorf("HashText(\"\") = %q, want \"none\"", got)
	}
	h := HashText("example format")
	if len(h) != 64 || strings.Contains(h, " ") {
		t.Errorf("HashText returned unexpected digest %q", h)
	}
	if HashText("example format") != h {
		t.Error("HashText not deterministic")
	}
}
