package core

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"
)

// FrontMatterFormat identifies the delimiter style of a front matter block.
type FrontMatterFormat int

const (
	FormatNone FrontMatterFormat = iota
	FormatYAML
	FormatTOML
)

func (f FrontMatterFormat) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "none"
	}
}

const (
	yamlDelimiter = "---"
	tomlDelimiter = "+++"
)

// DetectFrontMatter reports the format of the leading front matter block.
func DetectFrontMatter(content []byte) FrontMatterFormat {
	trimmed := bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")) // strip UTF-8 BOM
	switch {
	case hasDelimiterLine(trimmed, yamlDelimiter):
		return FormatYAML
	case hasDelimiterLine(trimmed, tomlDelimiter):
		return FormatTOML
	default:
		return FormatNone
	}
}

// hasDelimiterLine checks that content starts with the delimiter alone on
// the first line. A horizontal rule later in the file must not count.
func hasDelimiterLine(content []byte, delim string) bool {
	if !bytes.HasPrefix(content, []byte(delim)) {
		return false
	}
	rest := content[len(delim):]
	if len(rest) == 0 {
		return false
	}
	if rest[0] == '\n' {
		return true
	}
	return rest[0] == '\r' && len(rest) > 1 && rest[1] == '\n'
}

// ParseFrontMatter fills meta from the leading front matter block and
// returns the remaining body. Files without a block come back unchanged
// together with ErrNoFrontMatter so callers can decide whether that is
// acceptable for the file at hand.
func ParseFrontMatter(content []byte, meta *FileMetadata) ([]byte, error) {
	if DetectFrontMatter(content) == FormatNone {
		return content, ErrNoFrontMatter
	}
	body, err := frontmatter.Parse(bytes.NewReader(content), meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrontMatter, err)
	}
	return body, nil
}

// SplitFrontMatter separates the raw front matter block (without its
// delimiters) from the body. The checker validates the raw block itself,
// so unlike ParseFrontMatter this never decodes anything.
func SplitFrontMatter(content []byte) (raw, body []byte, format FrontMatterFormat, err error) {
	format = DetectFrontMatter(content)
	if format == FormatNone {
		return nil, content, FormatNone, ErrNoFrontMatter
	}

	delim := yamlDelimiter
	if format == FormatTOML {
		delim = tomlDelimiter
	}

	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	lines := bytes.Split(normalized, []byte("\n"))
	for i := 1; i < len(lines); i++ {
		if string(bytes.TrimRight(lines[i], " \t")) != delim {
			continue
		}
		raw = bytes.Join(lines[1:i], []byte("\n"))
		body = bytes.Join(lines[i+1:], []byte("\n"))
		return raw, body, format, nil
	}
	return nil, nil, format, fmt.Errorf("%w: missing closing %q", ErrInvalidFrontMatter, delim)
}

// CheckFrontMatterSyntax decodes the raw block in its declared format and
// returns the decode error, if any. The yaml decoder reports line and
// column positions, which the checker passes through to the author.
func CheckFrontMatterSyntax(raw []byte, format FrontMatterFormat) error {
	var doc map[string]interface{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFrontMatter, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFrontMatter, err)
		}
	default:
		return ErrUnknownFormat
	}
	return nil
}

// ComposeFrontMatter renders an ordered field list and a body into a
// complete content file. The scaffolder uses this to write new posts;
// fields keep their given order so title stays on top.
func ComposeFrontMatter(fields yaml.MapSlice, body string, format FrontMatterFormat) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		block, err := yaml.Marshal(fields)
		if err != nil {
			return nil, err
		}
		buf.WriteString(yamlDelimiter + "\n")
		buf.Write(block)
		buf.WriteString(yamlDelimiter + "\n")
	case FormatTOML:
		doc := make(map[string]interface{}, len(fields))
		for _, item := range fields {
			doc[fmt.Sprint(item.Key)] = item.Value
		}
		block, err := toml.Marshal(doc)
		if err != nil {
			return nil, err
		}
		buf.WriteString(tomlDelimiter + "\n")
		buf.Write(block)
		buf.WriteString(tomlDelimiter + "\n")
	default:
		return nil, ErrUnknownFormat
	}

	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}
