package core

import (
	"maps"
	"net/http"
)

const problemTypeBlank = "about:blank"

// Problem is an RFC 7807 error document. Code is the machine-readable error
// class; Extras carries endpoint specific members such as connection_ids.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Code     string
	Detail   string
	Instance string
	Extras   map[string]any
}

// Normalized returns a copy with status, title and type filled in.
func (p *Problem) Normalized() *Problem {
	out := Problem{}
	if p != nil {
		out = *p
	}
	if out.Status == 0 {
		out.Status = http.StatusInternalServerError
	}
	if out.Title == "" {
		out.Title = http.StatusText(out.Status)
	}
	if out.Type == "" {
		out.Type = problemTypeBlank
	}
	return &out
}

// Body is the JSON object written to the client. Extras never override the
// standard members.
func (p *Problem) Body() map[string]any {
	body := make(map[string]any, len(p.Extras)+6)
	maps.Copy(body, p.Extras)
	body["type"] = p.Type
	body["status"] = p.Status
	body["error"] = p.Title
	if p.Code != "" {
		body["code"] = p.Code
	} else {
		delete(body, "code")
	}
	if p.Detail != "" {
		body["details"] = p.Detail
	} else {
		delete(body, "details")
	}
	if p.Instance != "" {
		body["instance"] = p.Instance
	} else {
		delete(body, "instance")
	}
	return body
}
