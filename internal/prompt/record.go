// Package prompt turns fetched class documents into instruction prompts, one
// per documented method.
package prompt

// Metadata travels with a prompt unchanged from crawl to output.
type Metadata struct {
	Version string `json:"version"`
	Scope   string `json:"scope"`
	FullID  string `json:"fullId"`
}

// Record is one formatted instruction derived from one documented method.
type Record struct {
	ClassName  string   `json:"className"`
	MethodName string   `json:"methodName"`
	Prompt     string   `json:"prompt"`
	Metadata   Metadata `json:"metadata"`
}

// Subject returns "Class.method" for log lines.
func (r Record) Subject() string {
	return r.ClassName + "." + r.MethodName
}
