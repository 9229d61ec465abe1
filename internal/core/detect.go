package core

// detect.go determines how the bytes of an upload are turned into CSV text:
// which character encoding to decode with and which field delimiter to split on.

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const (
	charsetUTF8        = "UTF-8"
	charsetWindows1252 = "windows-1252"
)

var (
	errUnknownCharset     = errors.New("unknown charset")
	errUnsupportedCharset = errors.New("unsupported charset")
)

// DecodeStrategy describes how an upload was decoded.
type DecodeStrategy struct {
	Charset   string
	Delimiter rune
}

// Detect decodes raw upload bytes into text and picks the field delimiter.
//
// declaredCharset is the charset parameter of the request's Content-Type and
// may be empty. A declared UTF-8 or US-ASCII is treated like no declaration,
// since clients send it by default regardless of the file's real encoding.
func Detect(raw []byte, declaredCharset string) (string, DecodeStrategy, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", DecodeStrategy{}, &MalformedCSVError{Reason: "empty upload"}
	}

	text, charset, err := decodeText(raw, declaredCharset)
	if err != nil {
		return "", DecodeStrategy{}, err
	}

	delim, err := detectDelimiter(text)
	if err != nil {
		return "", DecodeStrategy{}, err
	}

	return text, DecodeStrategy{Charset: charset, Delimiter: delim}, nil
}

func decodeText(raw []byte, declared string) (string, string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		enc, err := ianaindex.IANA.Encoding(declared)
		if err != nil {
			return "", "", &DecodeError{Charset: declared, Err: errUnknownCharset}
		}
		if enc == nil {
			return "", "", &DecodeError{Charset: declared, Err: errUnsupportedCharset}
		}

		name := charsetName(enc, declared)
		if name != charsetUTF8 && name != "US-ASCII" {
			text, err := decodeWith(raw, enc)
			if err != nil {
				return "", "", &DecodeError{Charset: name, Err: err}
			}
			return text, name, nil
		}
	}

	if utf8.Valid(raw) {
		return string(raw), charsetUTF8, nil
	}

	text, err := decodeWith(raw, charmap.Windows1252)
	if err != nil {
		return "", "", &DecodeError{Charset: charsetWindows1252, Err: err}
	}
	return text, charsetWindows1252, nil
}

// charsetName prefers the MIME name of enc (ISO-8859-1 rather than the IANA
// registry's ISO_8859-1:1987) and falls back to the declared label.
func charsetName(enc encoding.Encoding, declared string) string {
	if name, err := ianaindex.MIME.Name(enc); err == nil && name != "" {
		return name
	}
	if name, err := ianaindex.IANA.Name(enc); err == nil && name != "" {
		return name
	}
	return declared
}

func decodeWith(raw []byte, enc encoding.Encoding) (string, error) {
	r := transform.NewReader(bytes.NewReader(raw), enc.NewDecoder())
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// detectDelimiter counts commas and semicolons outside quotes on the first
// non-blank line. A tie is broken by the second line.
func detectDelimiter(text string) (rune, error) {
	lines := leadingLines(text, 2)
	if len(lines) == 0 {
		return 0, &MalformedCSVError{Reason: "empty upload"}
	}

	commas, semis := countDelimiters(lines[0])
	switch {
	case commas == 0 && semis == 0:
		return ',', nil
	case commas > semis:
		return ',', nil
	case semis > commas:
		return ';', nil
	}

	if len(lines) > 1 {
		commas, semis = countDelimiters(lines[1])
		switch {
		case commas > semis:
			return ',', nil
		case semis > commas:
			return ';', nil
		}
	}

	return 0, &MalformedCSVError{Line: 1, Reason: "ambiguous delimiter"}
}

// leadingLines returns up to n non-blank lines from the start of text.
func leadingLines(text string, n int) []string {
	var lines []string
	for len(text) > 0 && len(lines) < n {
		line, rest, _ := strings.Cut(text, "\n")
		text = rest
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return lines
}

func countDelimiters(line string) (commas, semis int) {
	inQuotes := false
	for _, r := range line {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				commas++
			}
		case ';':
			if !inQuotes {
				semis++
			}
		}
	}
	return commas, semis
}
