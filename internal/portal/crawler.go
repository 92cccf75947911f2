package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Scope is one documentation namespace crawled independently.
type Scope struct {
	UI  string
	Key string
}

// DefaultScopes lists the API namespaces published on the developer portal.
var DefaultScopes = []Scope{
	{UI: "Client", Key: "client"},
	{UI: "Client Mobile", Key: "client_mobile"},
	{UI: "REST", Key: "rest"},
	{UI: "Server Scoped", Key: "server"},
	{UI: "Server Global", Key: "server_legacy"},
}

// SelectScopes returns the default scopes whose keys are listed, in default
// order. An empty list selects all of them.
func SelectScopes(keys []string) ([]Scope, error) {
	if len(keys) == 0 {
		return DefaultScopes, nil
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[strings.TrimSpace(k)] = true
	}
	var out []Scope
	for _, s := range DefaultScopes {
		if want[s.Key] {
			out = append(out, s)
			delete(want, s.Key)
		}
	}
	for k := range want {
		return nil, fmt.Errorf("unknown scope %q", k)
	}
	return out, nil
}

type sysparm struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

func devportalURL(base string, p sysparm) string {
	data, _ := json.Marshal(p)
	return strings.TrimRight(base, "/") + "/devportal.do?sysparm_data=" + url.QueryEscape(string(data))
}

// NavlistURL builds the navigation-list URL for a scope and release.
func NavlistURL(base, scope, release string) string {
	return devportalURL(base, sysparm{
		Action: "api.navlist",
		Data: struct {
			Navbar  string `json:"navbar"`
			Release string `json:"release"`
		}{scope, release},
	})
}

// DocURL builds the document URL for a document identifier and release.
func DocURL(base, id, release string) string {
	return devportalURL(base, sysparm{
		Action: "api.docs",
		Data: struct {
			ID      string `json:"id"`
			Release string `json:"release"`
		}{id, release},
	})
}

// NavEntry is one entry of a scope's navigation list.
type NavEntry struct {
	DCIdentifier string `json:"dc_identifier"`
	Name         string `json:"name,omitempty"`
}

// Node is a documentation tree node: a method, a parameter, a return value
// or an example.
type Node struct {
	Name          string `json:"name"`
	Text          string `json:"text"`
	Text2         string `json:"text2"`
	SectionHeader string `json:"sectionHeader"`
	Children      []Node `json:"children"`
}

// ClassData is the documented class with its methods as children.
type ClassData struct {
	Name     string `json:"name"`
	Children []Node `json:"children"`
}

// Document is one fetched class document tagged with where it came from.
type Document struct {
	Scope string
	ID    string
	Class ClassData
}

type docResponse struct {
	Result struct {
		Data struct {
			ClassData ClassData `json:"class_data"`
		} `json:"data"`
	} `json:"result"`
}

// Crawler fetches navigation lists and class documents through a Client.
type Crawler struct {
	client  *Client
	baseURL string
	release string
}

// NewCrawler creates a Crawler for the portal at baseURL and the given release.
func NewCrawler(client *Client, baseURL, release string) *Crawler {
	return &Crawler{client: client, baseURL: baseURL, release: release}
}

// Release returns the release the crawler targets.
func (c *Crawler) Release() string {
	return c.release
}

// Navlist returns the document entries for scope. Entries without an
// identifier are dropped.
func (c *Crawler) Navlist(ctx context.Context, scope string) ([]NavEntry, error) {
	var raw map[string]json.RawMessage
	if err := c.client.GetJSON(ctx, NavlistURL(c.baseURL, scope, c.release), &raw); err != nil {
		return nil, err
	}
	list, ok := raw[scope]
	if !ok {
		return nil, nil
	}
	var entries []NavEntry
	if err := json.Unmarshal(list, &entries); err != nil {
		return nil, fmt.Errorf("decoding navlist for %s: %w", scope, err)
	}
	out := entries[:0]
	for _, e := range entries {
		if e.DCIdentifier != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// Document fetches one class document.
func (c *Crawler) Document(ctx context.Context, scope, id string) (Document, error) {
	var resp docResponse
	if err := c.client.GetJSON(ctx, DocURL(c.baseURL, id, c.release), &resp); err != nil {
		return Document{}, err
	}
	return Document{Scope: scope, ID: id, Class: resp.Result.Data.ClassData}, nil
}
