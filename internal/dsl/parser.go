package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	fieldRe  = regexp.MustCompile(`^field\s+([^:]+?)\s*:\s*(.*)$`)
	entityRe = regexp.MustCompile(`^entity\s+([^:]+?)\s*:\s*(.*)$`)
	configRe = regexp.MustCompile(`^config(?:\s*:\s*|\s+)(.*)$`)
	selectRe = regexp.MustCompile(`^select\[(.*)\]$`)
)

// splitOptionTokens делит "k=v k2='v 2' select[a, b]" на токены,
// не разрывая по пробелам внутри кавычек и скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// stripComment срезает # вне кавычек
func stripComment(s string) string {
	inSingle, inDouble := false, false
	for i, r := range s {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble {
				return s[:i]
			}
		}
	}
	return s
}

func parseKV(tokens []string) map[string]string {
	out := map[string]string{}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		// флаг без значения → "true"
		if !strings.Contains(tok, "=") {
			out[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		if k != "" {
			out[k] = unquote(strings.TrimSpace(kv[1]))
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse читает один seed-файл; name используется в сообщениях об ошибках.
func Parse(r io.Reader, name string) (*Schema, error) {
	s := &Schema{Config: map[string]string{}}
	var current *EntitySpec
	lineNo := 0

	closeEntity := func() {
		if current != nil {
			s.Entities = append(s.Entities, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		indented := strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")

		// поля сущности на строках с отступом
		if indented && current != nil {
			current.Fields = append(current.Fields, splitList(strings.TrimPrefix(line, "- "))...)
			continue
		}
		closeEntity()

		if m := fieldRe.FindStringSubmatch(line); m != nil {
			tokens := splitOptionTokens(strings.ReplaceAll(m[2], ",", ", "))
			if len(tokens) == 0 {
				return nil, fmt.Errorf("%s:%d: field %q has no type", name, lineNo, m[1])
			}
			f := FieldSpec{Name: strings.TrimSpace(m[1]), File: name, Line: lineNo}
			typ := strings.TrimSpace(tokens[0])
			if mm := selectRe.FindStringSubmatch(typ); mm != nil {
				f.Type = "select"
				f.Options = splitList(mm[1])
			} else {
				f.Type = strings.ToLower(typ)
			}
			rest := make([]string, 0, len(tokens)-1)
			for _, tok := range tokens[1:] {
				rest = append(rest, strings.TrimSuffix(tok, ","))
			}
			f.Flags = parseKV(rest)
			if ref, ok := f.Flags["options"]; ok {
				f.OptionsRef = strings.TrimPrefix(ref, "@")
				delete(f.Flags, "options")
			}
			s.Fields = append(s.Fields, f)
			continue
		}

		if m := entityRe.FindStringSubmatch(line); m != nil {
			current = &EntitySpec{Name: strings.TrimSpace(m[1]), Fields: splitList(m[2]), File: name, Line: lineNo}
			continue
		}

		if m := configRe.FindStringSubmatch(line); m != nil {
			for k, v := range parseKV(splitOptionTokens(m[1])) {
				s.Config[k] = v
			}
			continue
		}

		return nil, fmt.Errorf("%s:%d: unexpected line %q", name, lineNo, line)
	}
	closeEntity()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// LoadAll собирает все *.dsl под root в одну схему (файлы по алфавиту).
// Отсутствующая папка: пустая схема.
func LoadAll(root string) (*Schema, error) {
	out := &Schema{Config: map[string]string{}}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	sort.Strings(paths)

	for _, p := range paths {
		s, err := LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		for k, v := range s.Config {
			out.Config[k] = v
		}
		out.Fields = append(out.Fields, s.Fields...)
		out.Entities = append(out.Entities, s.Entities...)
	}
	return out, nil
}
