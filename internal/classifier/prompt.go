package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	metadataContentLimit = 4000
	projectContentLimit  = 3000
)

const metadataSystemPrompt = "You are a helpful assistant that analyzes note content and generates concise titles and relevant tags. Always respond with valid JSON only."

const projectSystemPrompt = "You are a helpful assistant that matches notes to projects based on their descriptions. Always respond with valid JSON only. Be conservative: only suggest a project if you are confident (80%+) the note belongs there."

var fenceRe = regexp.MustCompile("```(?:json)?\\s*|\\s*```")

// truncate cuts s to at most max bytes on a rune boundary and marks the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func metadataPrompt(content string, types []CandidateType) string {
	var b strings.Builder
	b.WriteString("Analyze this note content and generate:\n")
	b.WriteString("1. A concise title (max 50 characters)\n")
	b.WriteString("2. Relevant tags (1-5 tags, lowercase, single words or short phrases)\n")
	if len(types) > 0 {
		b.WriteString("3. The capture type that fits best, from this list:\n")
		for _, t := range types {
			fmt.Fprintf(&b, "- ID %d: %s (%s) - %s\n", t.ID, t.Name, t.Symbol, t.Description)
		}
	}
	b.WriteString("\nContent:\n")
	b.WriteString(truncate(content, metadataContentLimit))
	b.WriteString("\n\nRespond ONLY with valid JSON in this exact format:\n")
	if len(types) > 0 {
		b.WriteString(`{"title": "your title here", "tags": ["tag1", "tag2", "tag3"], "capture_type_id": <id or null>}`)
	} else {
		b.WriteString(`{"title": "your title here", "tags": ["tag1", "tag2", "tag3"]}`)
	}
	return b.String()
}

func projectPrompt(content string, projects []CandidateProject) string {
	var b strings.Builder
	b.WriteString("Given this note content and these projects with their descriptions, pick the single best matching project.\n\nProjects:\n")
	for _, p := range projects {
		fmt.Fprintf(&b, "- ID %d: %q", p.ID, p.Name)
		if p.Description != "" {
			b.WriteString(" - " + p.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nNote content:\n")
	b.WriteString(truncate(content, projectContentLimit))
	b.WriteString("\n\nRespond ONLY with valid JSON in this exact format. If no project is a good match (confidence < 80), return null for project_id:\n")
	b.WriteString(`{"project_id": <id or null>, "confidence": <0-100>}`)
	return b.String()
}

// stripFences removes markdown code fences the model sometimes wraps JSON in.
func stripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

func parseMetadata(text string, types []CandidateType) (*Metadata, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse response as json: %w", err)
	}
	rawTitle, okTitle := raw["title"]
	rawTags, okTags := raw["tags"]
	if !okTitle || !okTags {
		return nil, errors.New("response missing required fields (title or tags)")
	}
	title, ok := rawTitle.(string)
	if !ok {
		return nil, errors.New("title must be a string")
	}
	list, ok := rawTags.([]any)
	if !ok {
		return nil, errors.New("tags must be an array")
	}

	md := &Metadata{Title: strings.TrimSpace(title), Tags: make([]string, 0, len(list))}
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			md.Tags = append(md.Tags, s)
		}
	}
	if id, ok := toInt64(raw["capture_type_id"]); ok {
		for _, t := range types {
			if t.ID == id {
				md.TypeID = &id
				break
			}
		}
	}
	return md, nil
}

func parseProjectSuggestion(text string, projects []CandidateProject) (*ProjectSuggestion, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse response as json: %w", err)
	}
	id, ok := toInt64(raw["project_id"])
	if !ok {
		return nil, nil
	}
	conf, _ := toInt64(raw["confidence"])
	conf = min(max(conf, 0), 100)
	for _, p := range projects {
		if p.ID == id {
			return &ProjectSuggestion{ProjectID: id, Confidence: int(conf)}, nil
		}
	}
	return nil, nil
}

// toInt64 accepts JSON numbers and numeric strings.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
