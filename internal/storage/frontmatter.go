package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

var errUnclosedFrontmatter = errors.New("unclosed frontmatter")

// formatRowFile renders a row file: YAML frontmatter keyed by column id,
// followed by the body.
func formatRowFile(fields map[string]any, body string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(frontmatterDelimiter + "\n")
	if len(fields) > 0 {
		enc := yaml.NewEncoder(&b)
		enc.SetIndent(2)
		if err := enc.Encode(fields); err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	b.WriteString(frontmatterDelimiter + "\n")
	b.WriteString(body)
	return b.Bytes(), nil
}

// parseRowFile splits a row file into its frontmatter map and body. A file
// without frontmatter is all body.
func parseRowFile(data []byte) (map[string]any, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") {
		return map[string]any{}, text, nil
	}
	rest := text[len(frontmatterDelimiter)+1:]

	var header, body string
	switch {
	case strings.HasPrefix(rest, frontmatterDelimiter+"\n"):
		body = rest[len(frontmatterDelimiter)+1:]
	case rest == frontmatterDelimiter:
	default:
		end := strings.Index(rest, "\n"+frontmatterDelimiter+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+frontmatterDelimiter) {
				return nil, "", errUnclosedFrontmatter
			}
			end = len(rest) - len(frontmatterDelimiter) - 1
			header = rest[:end]
		} else {
			header = rest[:end]
			body = rest[end+len(frontmatterDelimiter)+2:]
		}
	}

	fields := map[string]any{}
	if strings.TrimSpace(header) != "" {
		if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
			return nil, "", fmt.Errorf("decode frontmatter: %w", err)
		}
	}
	return fields, body, nil
}
