package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// transcriptLine covers the JSONL shapes session transcripts use: either a
// top-level {role, content} record or the same pair nested under "message".
// Content is a plain string or an array of typed parts.
type transcriptLine struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// transcriptText flattens a session transcript into searchable prose: one
// "role: text" paragraph per message, in file order. Lines that do not
// parse, and messages without text, are dropped rather than failing the
// file.
func transcriptText(data []byte) string {
	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}

		role, content := line.Role, line.Content
		if line.Message != nil {
			role, content = line.Message.Role, line.Message.Content
		}
		text := contentText(content)
		if text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if role != "" {
			b.WriteString(role)
			b.WriteString(": ")
		}
		b.WriteString(text)
	}
	return b.String()
}

// contentText extracts the text of one message content value.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}
