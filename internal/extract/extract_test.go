package extract

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_EmptyAndError(t *testing.T) {
	for _, in := range []string{"", "   \n ", "ERROR: x", "ERROR: lmstudio: executing request: connection refused"} {
		if got := Parse(in); len(got) != 0 {
			t.Errorf("Parse(%q) = %v, want empty", in, got)
		}
	}
}

func TestParse_InlineAnswerMarker(t *testing.T) {
	got := Parse("Question 1: Is X valid? **Answer:** Yes, because it satisfies every constraint.")
	if len(got) != 1 {
		t.Fatalf("got %d pairs, want 1: %v", len(got), got)
	}
	if !strings.HasSuffix(got[0].Question, "?") {
		t.Errorf("question %q does not end with ?", got[0].Question)
	}
	if got[0].Answer == "" || strings.Contains(got[0].Answer, "Answer:") || strings.Contains(got[0].Answer, "**") {
		t.Errorf("answer = %q", got[0].Answer)
	}
	want := Pair{Question: "Is X valid?", Answer: "Yes, because it satisfies every constraint."}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("pair mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Numbered(t *testing.T) {
	reply := `Sure! Here are three questions a developer might ask.

**Question 1:** How do I filter a GlideRecord query by an active flag?

Call addQuery before query():

` + "```js\nvar gr = new GlideRecord('incident');\ngr.addQuery('active', true);\ngr.query();\n```" + `

### Question 2: Can addQuery be chained with OR conditions?
Yes. addQuery returns a QueryCondition, and you can call addOrCondition on it.

Q3. What happens when the field name is wrong. The query ignores the condition and may return every record.`

	want := []Pair{
		{
			Question: "How do I filter a GlideRecord query by an active flag?",
			Answer:   "Call addQuery before query():\n\n```js\nvar gr = new GlideRecord('incident');\ngr.addQuery('active', true);\ngr.query();\n```",
		},
		{
			Question: "Can addQuery be chained with OR conditions?",
			Answer:   "Yes. addQuery returns a QueryCondition, and you can call addOrCondition on it.",
		},
		{
			Question: "What happens when the field name is wrong.",
			Answer:   "The query ignores the condition and may return every record.",
		},
	}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_EnumeratedList(t *testing.T) {
	reply := "1. How do I query active incidents?\nUse gr.addQuery('active', true) then gr.query().\n" +
		"2) What does next() return?\nIt returns true while more records remain."

	want := []Pair{
		{Question: "How do I query active incidents?", Answer: "Use gr.addQuery('active', true) then gr.query()."},
		{Question: "What does next() return?", Answer: "It returns true while more records remain."},
	}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestNumbered_LineBreakFallback(t *testing.T) {
	// No boundary at or past the minimum offset, so the first line is the question.
	got := Numbered.Parse("Question 1: Why\nBecause the API requires it.")
	want := []Pair{{Question: "Why", Answer: "Because the API requires it."}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNumbered_DropsEmptySides(t *testing.T) {
	got := Numbered.Parse("Question 1: Only a question with nothing after it\nQuestion 2:\n")
	if len(got) != 0 {
		t.Errorf("got %v, want no pairs", got)
	}
}

func TestParse_AnswerMarkerBlocks(t *testing.T) {
	reply := `Here is some intro text.

What does addQuery do?
**Answer:** It adds a filter condition to the GlideRecord query.

How do I chain conditions?
Answer: Call addQuery repeatedly or use addOrCondition on the result.

Is this short?
A: Yes.`

	want := []Pair{
		{Question: "What does addQuery do?", Answer: "It adds a filter condition to the GlideRecord query."},
		{Question: "How do I chain conditions?", Answer: "Call addQuery repeatedly or use addOrCondition on the result."},
	}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_MarkerWhenParagraphsFail(t *testing.T) {
	// The question has no sentence boundary, so only the marker can split it.
	reply := "Explain how the addQuery method is used inside a scoped app\nAnswer: It adds a filter condition to the query."

	if got := Paragraphs.Parse(reply); len(got) != 0 {
		t.Fatalf("Paragraphs.Parse = %v, want none", got)
	}
	want := []Pair{{
		Question: "Explain how the addQuery method is used inside a scoped app",
		Answer:   "It adds a filter condition to the query.",
	}}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestStrategies_Order(t *testing.T) {
	var names []string
	for _, s := range Strategies {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"numbered", "paragraphs", "marker"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_InlineQuestionDelimiters(t *testing.T) {
	reply := "Here you go. Question 1: What does addQuery do? It adds a filter to the query. " +
		"Question 2: How do I order results? Call orderByDesc on the field name."

	want := []Pair{
		{Question: "What does addQuery do?", Answer: "It adds a filter to the query."},
		{Question: "How do I order results?", Answer: "Call orderByDesc on the field name."},
	}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_StepsInsideAnswer(t *testing.T) {
	reply := "**How do I query records?**\n**Answer:** Use GlideRecord as follows:\n" +
		"1. Create the record object\n2. Call query() and iterate"

	want := []Pair{{
		Question: "How do I query records?",
		Answer:   "Use GlideRecord as follows:\n1. Create the record object\n2. Call query() and iterate",
	}}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	if got := Marker.Parse(reply); len(got) != 1 {
		t.Errorf("Marker.Parse = %v, want one pair despite the numbered steps", got)
	}
}

func TestParse_PeriodBeforeLineBreak(t *testing.T) {
	reply := "This explains the method.\nThe method adds a filter condition to the current GlideRecord query."

	want := []Pair{{
		Question: "This explains the method.",
		Answer:   "The method adds a filter condition to the current GlideRecord query.",
	}}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestMarker_SkippedWhenNumbered(t *testing.T) {
	reply := "Question 1: What is it?\n**Answer:** A thing that is long enough to count."
	if got := Marker.Parse(reply); got != nil {
		t.Errorf("Marker.Parse = %v, want nil when delimiters exist", got)
	}
}

func TestParse_ParagraphFallback(t *testing.T) {
	reply := "Is addQuery chainable? Yes, it returns a QueryCondition object that you can extend with addOrCondition.\n\n" +
		"short\n\n" +
		"This block has its first boundary far too late in the text to be a question? no.\n\n" +
		"What is getRowCount used for? It returns the number of rows in the current result set."

	want := []Pair{
		{Question: "Is addQuery chainable?", Answer: "Yes, it returns a QueryCondition object that you can extend with addOrCondition."},
		{Question: "What is getRowCount used for?", Answer: "It returns the number of rows in the current result set."},
	}
	if diff := cmp.Diff(want, Parse(reply)); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Unstructured(t *testing.T) {
	if got := Parse("ok"); len(got) != 0 {
		t.Errorf("Parse(ok) = %v", got)
	}
	if got := Parse("I cannot help with that"); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestParse_AllPairsNonEmpty(t *testing.T) {
	inputs := []string{
		"Question 1: **\n\nQuestion 2: What is a GlideAjax call?\nAn async request.",
		"1. \n2. What does it do exactly?\nIt works.",
		"A: \n\nAnswer: something that is definitely long enough",
	}
	for _, in := range inputs {
		for _, p := range Parse(in) {
			if strings.TrimSpace(p.Question) == "" || strings.TrimSpace(p.Answer) == "" {
				t.Errorf("Parse(%q) produced empty side: %+v", in, p)
			}
		}
	}
}

func TestBoundary(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"short?", -1},
		{"Is X valid? yes", 10},
		{"What? Then this. Yes", 15},
		{"0123456789abc\nrest", 13},
		{"This explains it.\tThen more", 16},
	}
	for _, tt := range tests {
		if got := boundary(tt.in, blockBoundary); got != tt.want {
			t.Errorf("boundary(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
