package taxonomy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// The canonical sources are TypeScript modules maintained next to the
// application code: the frontend catalog exports a CATALOGO_RUBROS array of
// object literals, the backend exports a RUBRO_MAP token->id object plus an
// optional RUBRO_DEFAULTS object of named fallbacks. The parsers below scan
// exactly that declarative subset line by line; anything else is a
// ParseError, which aborts the run before any store access.

// ParseError reports a malformed or missing declarative source.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

const (
	catalogMarker  = "CATALOGO_RUBROS"
	aliasMarker    = "RUBRO_MAP"
	defaultsMarker = "RUBRO_DEFAULTS"
)

// Default provider-chain paths, ordered. The first is the current repo
// layout, the rest are the layouts older release branches still use.
var (
	DefaultCatalogPaths = []string{
		"frontend/src/data/catalogoRubros.ts",
		"src/data/catalogoRubros.ts",
	}
	DefaultAliasPaths = []string{
		"backend/src/domain/rubroMap.ts",
		"backend/src/rubroMap.ts",
	}
)

// ParseCatalog extracts the CATALOGO_RUBROS entry list from a frontend
// source. path is used for error reporting only.
func ParseCatalog(r io.Reader, path string) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var (
		entries  []Entry
		current  map[string]string
		inArray  bool
		inObject bool
	)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !inArray {
			if strings.Contains(line, catalogMarker) && strings.Contains(line, "[") {
				inArray = true
			}
			continue
		}
		if !inObject {
			if strings.HasPrefix(line, "{") {
				inObject = true
				current = map[string]string{}
				line = strings.TrimSpace(strings.TrimPrefix(line, "{"))
				if line == "" {
					continue
				}
			} else if strings.HasPrefix(line, "]") {
				break
			} else {
				return nil, &ParseError{Path: path, Line: lineNum, Msg: fmt.Sprintf("unexpected %q inside %s array", line, catalogMarker)}
			}
		}
		closed := false
		if idx := strings.Index(line, "}"); idx >= 0 {
			closed = true
			line = strings.TrimSpace(line[:idx])
		}
		if line != "" {
			for _, field := range splitFields(line) {
				field = strings.TrimSpace(field)
				if field == "" {
					continue
				}
				key, value, err := splitLiteralField(field)
				if err != nil {
					return nil, &ParseError{Path: path, Line: lineNum, Msg: err.Error()}
				}
				current[key] = value
			}
		}
		if closed {
			entry, err := entryFromFields(current)
			if err != nil {
				return nil, &ParseError{Path: path, Line: lineNum, Msg: err.Error()}
			}
			entries = append(entries, entry)
			inObject = false
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !inArray {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("%s array not found", catalogMarker)}
	}
	if len(entries) == 0 {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("%s array is empty", catalogMarker)}
	}
	return entries, nil
}

// entryFromFields maps the object-literal fields of one catalog element to
// an Entry. The legacy field name linea_gasto is accepted as an alias for
// descripcion.
func entryFromFields(fields map[string]string) (Entry, error) {
	id := fields["id"]
	if id == "" {
		return Entry{}, fmt.Errorf("catalog entry missing id")
	}
	desc := fields["descripcion"]
	if desc == "" {
		desc = fields["linea_gasto"]
	}
	return Entry{
		ID:               id,
		Descripcion:      desc,
		Categoria:        fields["categoria"],
		CategoriaCodigo:  fields["categoria_codigo"],
		FuenteReferencia: fields["fuente_referencia"],
		TipoEjecucion:    fields["tipo_ejecucion"],
		TipoCosto:        fields["tipo_costo"],
	}, nil
}

// ParseAliasMap extracts RUBRO_MAP and the optional RUBRO_DEFAULTS from a
// backend source.
func ParseAliasMap(r io.Reader, path string) (aliases, defaults map[string]string, err error) {
	scanner := bufio.NewScanner(r)
	aliases = map[string]string{}
	defaults = map[string]string{}
	const (
		outside = iota
		inAliases
		inDefaults
	)
	state := outside
	found := false
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		switch state {
		case outside:
			if strings.Contains(line, aliasMarker) && strings.Contains(line, "{") {
				state = inAliases
				found = true
			} else if strings.Contains(line, defaultsMarker) && strings.Contains(line, "{") {
				state = inDefaults
			}
		case inAliases, inDefaults:
			if strings.HasPrefix(line, "}") {
				state = outside
				continue
			}
			field := strings.TrimSuffix(line, ",")
			key, value, ferr := splitLiteralField(field)
			if ferr != nil {
				return nil, nil, &ParseError{Path: path, Line: lineNum, Msg: ferr.Error()}
			}
			if state == inAliases {
				aliases[key] = value
			} else {
				defaults[key] = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, &ParseError{Path: path, Msg: fmt.Sprintf("%s object not found", aliasMarker)}
	}
	if len(aliases) == 0 {
		return nil, nil, &ParseError{Path: path, Msg: fmt.Sprintf("%s object is empty", aliasMarker)}
	}
	return aliases, defaults, nil
}

// splitFields splits an object-literal line on commas outside string
// literals, so quoted values may contain commas.
func splitFields(line string) []string {
	var (
		fields []string
		start  int
		quote  byte
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == ',':
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	fields = append(fields, line[start:])
	return fields
}

// splitLiteralField parses one `key: 'value'` pair of an object literal.
// Keys may be bare identifiers or quoted; values must be string literals.
func splitLiteralField(field string) (string, string, error) {
	idx := strings.Index(field, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing ':' in field %q", field)
	}
	key := unquote(strings.TrimSpace(field[:idx]))
	value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(field[idx+1:]), ","))
	unquoted, ok := unquoteStrict(value)
	if !ok {
		return "", "", fmt.Errorf("field %q: value must be a string literal", key)
	}
	return key, unquoted, nil
}

func unquote(s string) string {
	if v, ok := unquoteStrict(s); ok {
		return v
	}
	return s
}

func unquoteStrict(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	switch s[0] {
	case '\'', '"', '`':
		if s[len(s)-1] == s[0] {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}

// LoadCatalog tries each candidate path in order and returns the catalog
// from the first source that parses, along with the path used. Every
// attempt is logged so a fallback is visible in the run output.
func LoadCatalog(paths []string, logw io.Writer) (Catalog, string, error) {
	var lastErr error
	for _, path := range paths {
		entries, err := parseCatalogFile(path)
		if err != nil {
			fmt.Fprintf(logw, "catalog source %s: %v\n", path, err)
			lastErr = err
			continue
		}
		fmt.Fprintf(logw, "catalog source %s: %d entries\n", path, len(entries))
		return NewCatalog(entries), path, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no catalog source paths configured")
	}
	return Catalog{}, "", lastErr
}

// LoadAliasMap mirrors LoadCatalog for the backend alias source.
func LoadAliasMap(paths []string, logw io.Writer) (AliasMap, string, error) {
	var lastErr error
	for _, path := range paths {
		aliases, defaults, err := parseAliasFile(path)
		if err != nil {
			fmt.Fprintf(logw, "alias source %s: %v\n", path, err)
			lastErr = err
			continue
		}
		fmt.Fprintf(logw, "alias source %s: %d tokens\n", path, len(aliases))
		return NewAliasMap(aliases, defaults), path, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no alias source paths configured")
	}
	return AliasMap{}, "", lastErr
}

func parseCatalogFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseCatalog(f, path)
}

func parseAliasFile(path string) (map[string]string, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseAliasMap(f, path)
}
