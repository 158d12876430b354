package room

import "testing"

// §8 scenario 6.
func TestSanitizeMessageScenario6(t *testing.T) {
	tree := MessageNode{
		Children: []MessageNode{
			{Tag: "SCRIPT", Children: []MessageNode{{Text: "alert(1)"}}},
			{Tag: "A", Attrs: map[string]string{"href": "javascript:1"}, Children: []MessageNode{{Text: "x"}}},
			{Tag: "A", Attrs: map[string]string{"href": "https://e.com"}, Children: []MessageNode{{Text: "ok"}}},
		},
	}

	got := SanitizeMessage(tree)
	want := `<a target="_blank">x</a><a href="https://e.com" target="_blank">ok</a>`
	if got != want {
		t.Fatalf("SanitizeMessage = %q, want %q", got, want)
	}
}

// sanitize(sanitize(x)) == sanitize(x) (§8 round-trip property): the
// attributes the whitelist drops (onclick/class/target) must not leak
// into the output, so sanitizing the full tree once reproduces exactly
// what sanitizing its already-canonical (href-only) form produces.
func TestSanitizeMessageIsIdempotent(t *testing.T) {
	tree := MessageNode{
		Tag: "A",
		Attrs: map[string]string{
			"href":    "https://example.com",
			"onclick": "evil()",
			"class":   "should-drop",
			"target":  "should-drop-too",
		},
		Children: []MessageNode{{Text: "hi"}},
	}
	once := SanitizeMessage(tree)

	canonical := MessageNode{
		Tag:      "A",
		Attrs:    map[string]string{"href": "https://example.com"},
		Children: []MessageNode{{Text: "hi"}},
	}
	twice := SanitizeMessage(canonical)

	if once != twice {
		t.Fatalf("sanitize is not idempotent: %q != %q", once, twice)
	}
}

func TestSanitizeMessageDropsForbiddenTagsOnly(t *testing.T) {
	tree := MessageNode{
		Children: []MessageNode{
			{Tag: "STYLE", Children: []MessageNode{{Text: "body{}"}}},
			{Tag: "IFRAME", Attrs: map[string]string{"href": "https://e.com"}},
			{Tag: "B", Children: []MessageNode{{Text: "bold"}}},
		},
	}
	got := SanitizeMessage(tree)
	if got != "<b>bold</b>" {
		t.Fatalf("SanitizeMessage = %q, want only the B element to survive", got)
	}
}

func TestSanitizeMessageStripsEventAndClassAttrs(t *testing.T) {
	tree := MessageNode{
		Tag: "SPAN",
		Attrs: map[string]string{
			"onmouseover": "evil()",
			"class":       "red",
			"style":       "color:red",
		},
		Children: []MessageNode{{Text: "hi"}},
	}
	got := SanitizeMessage(tree)
	want := `<span style="color:red">hi</span>`
	if got != want {
		t.Fatalf("SanitizeMessage = %q, want %q", got, want)
	}
}
