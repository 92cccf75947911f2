// Package dataset writes and reads the two JSONL files a run produces: the
// full record file with every prompt and its model reply, and the fine-tune
// file with one chat example per extracted question/answer pair.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/devharvest/internal/engine"
	"github.com/kalambet/devharvest/internal/extract"
	"github.com/kalambet/devharvest/internal/pipeline"
	"github.com/kalambet/devharvest/internal/prompt"
)

// FinetunePersona is the system turn of every fine-tune example.
const FinetunePersona = "You are a helpful ServiceNow developer assistant with expertise in the ServiceNow JavaScript API."

// FullRecord is one line of the full record file. AIResponse is nil when AI
// processing was off, and holds "ERROR: <cause>" when the call failed.
type FullRecord struct {
	prompt.Record
	AIResponse *string `json:"aiResponse,omitempty"`
}

// NewFullRecord combines a prompt with its runner result.
func NewFullRecord(rec prompt.Record, res pipeline.Result) FullRecord {
	out := FullRecord{Record: rec}
	if !res.Processed {
		return out
	}
	reply := res.Response
	if res.Err != nil {
		reply = extract.ErrorMarker + " " + res.Err.Error()
	}
	out.AIResponse = &reply
	return out
}

// Reply returns the model text when the call succeeded.
func (r FullRecord) Reply() (string, bool) {
	if r.AIResponse == nil || strings.HasPrefix(*r.AIResponse, extract.ErrorMarker) {
		return "", false
	}
	return *r.AIResponse, true
}

// Failed reports whether the record holds an error-marked reply.
func (r FullRecord) Failed() bool {
	return r.AIResponse != nil && strings.HasPrefix(*r.AIResponse, extract.ErrorMarker)
}

// ExampleMetadata identifies where a fine-tune example came from.
type ExampleMetadata struct {
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
	Version    string `json:"version"`
	Scope      string `json:"scope"`
}

// Example is one line of the fine-tune file.
type Example struct {
	Messages []engine.Message `json:"messages"`
	Metadata ExampleMetadata  `json:"metadata"`
}

// Examples parses the record's reply into fine-tune examples. Records that
// were not processed or whose call failed yield none.
func Examples(r FullRecord) []Example {
	reply, ok := r.Reply()
	if !ok {
		return nil
	}
	pairs := extract.Parse(reply)
	out := make([]Example, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Example{
			Messages: []engine.Message{
				{Role: "system", Content: FinetunePersona},
				{Role: "user", Content: p.Question},
				{Role: "assistant", Content: p.Answer},
			},
			Metadata: ExampleMetadata{
				ClassName:  r.ClassName,
				MethodName: r.MethodName,
				Version:    r.Metadata.Version,
				Scope:      r.Metadata.Scope,
			},
		})
	}
	return out
}

// Timestamp formats t the way output filenames carry it: ISO 8601 in UTC with
// ':' and '.' replaced by '-'.
func Timestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// Paths returns the full record and fine-tune file paths for a run.
func Paths(dir, version string, t time.Time) (records, finetune string) {
	ts := Timestamp(t)
	records = filepath.Join(dir, fmt.Sprintf("servicenow_%s_docs_%s.jsonl", version, ts))
	finetune = filepath.Join(dir, fmt.Sprintf("servicenow_%s_finetune_%s.jsonl", version, ts))
	return records, finetune
}

// FinetunePathFor derives a fine-tune path next to a full record file, used
// when re-parsing saved replies.
func FinetunePathFor(recordsPath string, t time.Time) string {
	dir, base := filepath.Split(recordsPath)
	base = strings.TrimSuffix(base, ".jsonl")
	if i := strings.Index(base, "_docs_"); i >= 0 {
		base = base[:i]
	}
	return filepath.Join(dir, fmt.Sprintf("%s_finetune_%s.jsonl", base, Timestamp(t)))
}
