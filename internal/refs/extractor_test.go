package refs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// --- mock backend ---

type mockBackend struct {
	response string
	err      error
	calls    int
}

func (m *mockBackend) Complete(_ context.Context, _ genai.Request) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testConfig() types.ReferenceConfig {
	return types.ReferenceConfig{
		AIConfig: types.AIConfig{Model: "test-model", MaxRetries: 1, BaseDelay: time.Millisecond},
	}
}

func entityJSON(t *testing.T, entities []extractedEntity) string {
	t.Helper()
	data, err := json.Marshal(extractionResponse{Entities: entities})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// --- NormalizeHandle ---

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"John", "@john"},
		{"Sarah Connor", "@sarah_connor"},
		{"the  Warehouse!!", "@the_warehouse"},
		{"Mrs. O'Brien", "@mrs_o_brien"},
		{"__weird--name__", "@weird_name"},
		{"42nd Street", "@42nd_street"},
		{"!!!", "@ref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeHandle(tt.name); got != tt.want {
				t.Errorf("NormalizeHandle(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestUniqueHandleDisambiguates(t *testing.T) {
	taken := map[string]bool{"@john": true, "@john_2": true}
	if got := UniqueHandle("John", taken); got != "@john_3" {
		t.Errorf("UniqueHandle = %q, want %q", got, "@john_3")
	}
}

// --- Extract ---

var handlePattern = regexp.MustCompile(`^@[a-z0-9_]+$`)

func TestExtractNoHallucination(t *testing.T) {
	doc := "John walked into the warehouse. Sarah followed."

	// The backend names a third character absent from the text; the
	// extractor must omit it.
	backend := &mockBackend{response: entityJSON(t, []extractedEntity{
		{Name: "John", Kind: "character", Description: "a man entering"},
		{Name: "Sarah", Kind: "character", Description: "a woman following"},
		{Name: "Marcus", Kind: "character", Description: "a bystander"},
		{Name: "the warehouse", Kind: "location", Description: "an industrial interior"},
	})}

	set, err := NewExtractor(backend, testConfig()).Extract(context.Background(), doc, types.DocStory)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := len(set.ByKind[types.KindCharacter]); got != 2 {
		t.Errorf("characters = %d, want 2", got)
	}
	if set.Has("@marcus") {
		t.Error("hallucinated character @marcus was not dropped")
	}
	if !set.Has("@john") || !set.Has("@sarah") {
		t.Errorf("missing expected characters, handles = %v", set.Handles())
	}
	if !set.Has("@the_warehouse") {
		t.Errorf("missing expected location, handles = %v", set.Handles())
	}
}

func TestExtractHandleUniquenessAndShape(t *testing.T) {
	doc := "John Smith argued with John Brown outside John's Diner."

	backend := &mockBackend{response: entityJSON(t, []extractedEntity{
		{Name: "John", Kind: "character"},
		{Name: "John!", Kind: "character"},
		{Name: "John's Diner", Kind: "location"},
	})}

	set, err := NewExtractor(backend, testConfig()).Extract(context.Background(), doc, types.DocStory)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	handles := set.Handles()
	if len(handles) != 3 {
		t.Fatalf("got %d handles %v, want 3", len(handles), handles)
	}
	seen := make(map[string]bool)
	for _, h := range handles {
		if !handlePattern.MatchString(h) {
			t.Errorf("handle %q does not match ^@[a-z0-9_]+$", h)
		}
		if seen[h] {
			t.Errorf("duplicate handle %q", h)
		}
		seen[h] = true
		if h[1] == '_' || h[len(h)-1] == '_' {
			t.Errorf("handle %q has leading or trailing underscore", h)
		}
	}
}

func TestExtractUnknownKindDropped(t *testing.T) {
	doc := "A sword lay on the table."
	backend := &mockBackend{response: entityJSON(t, []extractedEntity{
		{Name: "sword", Kind: "weapon"},
		{Name: "sword", Kind: "prop"},
	})}

	set, err := NewExtractor(backend, testConfig()).Extract(context.Background(), doc, types.DocStory)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("set.Len() = %d, want 1 (unknown kind dropped)", set.Len())
	}
}

func TestExtractDegradesToEmptySet(t *testing.T) {
	// Unusable response body degrades to defaults, which the extractor
	// maps to an empty set rather than a failed pipeline.
	backend := &mockBackend{response: "the model rambled instead of emitting JSON"}

	set, err := NewExtractor(backend, testConfig()).Extract(context.Background(), "Some story.", types.DocStory)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !set.IsEmpty() {
		t.Errorf("set.Len() = %d, want empty set", set.Len())
	}
}

func TestExtractSurfacesTransportError(t *testing.T) {
	backend := &mockBackend{err: errors.New("connection refused")}

	_, err := NewExtractor(backend, testConfig()).Extract(context.Background(), "Some story.", types.DocStory)
	if err == nil {
		t.Fatal("expected transport error")
	}
}

// --- YAML round trip ---

func TestLoadSetRejectsDuplicateHandles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.yaml")

	set := types.NewReferenceSet()
	if err := set.Add(types.Reference{Handle: "@john", Name: "John", Kind: types.KindCharacter}); err != nil {
		t.Fatal(err)
	}
	if err := SaveSet(path, set); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSet(path)
	if err != nil {
		t.Fatalf("LoadSet: %v", err)
	}
	if !loaded.Has("@john") {
		t.Error("round trip lost @john")
	}

	// A duplicate across kinds must be rejected on load.
	raw := "by_kind:\n  character:\n    - handle: \"@x\"\n      name: X\n  prop:\n    - handle: \"@x\"\n      name: X again\n"
	dupPath := filepath.Join(dir, "dup.yaml")
	if err := os.WriteFile(dupPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSet(dupPath); err == nil {
		t.Error("expected duplicate-handle error")
	}
}
