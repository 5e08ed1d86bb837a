package prompt

import (
	"sort"
	"strings"
)

// Templates use two constructs:
//
//	{{name}}                              replaced by the variable value
//	{{#if name}}shown{{else}}fallback{{/if}}  picks a branch by whether name is set and non-blank
//
// Rendering is a single pass, so braces inside substituted values are
// never expanded. Whitespace inside a tag is ignored. Unknown placeholders
// and unbalanced tags are kept as text.

type nodeKind int

const (
	textNode nodeKind = iota
	varNode
	ifNode
)

type node struct {
	kind      nodeKind
	text      string // literal text, or the variable name
	raw       string // source of a var tag
	then      []node
	otherwise []node
}

// Template is a parsed prompt template.
type Template struct {
	nodes []node
}

// Parse parses src. It never fails; malformed tags render verbatim.
func Parse(src string) *Template {
	p := &parser{src: src}
	nodes, _ := p.parse(false, false)
	return &Template{nodes: nodes}
}

// Render parses src and renders it with vars.
func Render(src string, vars map[string]string) string {
	return Parse(src).Execute(vars)
}

// Execute renders the template with vars.
func (t *Template) Execute(vars map[string]string) string {
	var sb strings.Builder
	renderNodes(&sb, t.nodes, vars)
	return sb.String()
}

// Variables lists every name used as a placeholder or condition, sorted.
func (t *Template) Variables() []string {
	seen := map[string]bool{}
	collectVariables(t.nodes, seen)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func renderNodes(sb *strings.Builder, nodes []node, vars map[string]string) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			sb.WriteString(n.text)
		case varNode:
			if value, ok := vars[n.text]; ok {
				sb.WriteString(value)
			} else {
				sb.WriteString(n.raw)
			}
		case ifNode:
			if strings.TrimSpace(vars[n.text]) != "" {
				renderNodes(sb, n.then, vars)
			} else {
				renderNodes(sb, n.otherwise, vars)
			}
		}
	}
}

func collectVariables(nodes []node, seen map[string]bool) {
	for _, n := range nodes {
		switch n.kind {
		case varNode:
			seen[n.text] = true
		case ifNode:
			seen[n.text] = true
			collectVariables(n.then, seen)
			collectVariables(n.otherwise, seen)
		}
	}
}

type parser struct {
	src string
	pos int
}

// parse reads nodes until the input ends or, inside a conditional, until
// {{else}} (when allowed) or {{/if}}. It returns the stopping tag, or ""
// at end of input.
func (p *parser) parse(inIf, allowElse bool) ([]node, string) {
	var nodes []node
	for p.pos < len(p.src) {
		open := strings.Index(p.src[p.pos:], "{{")
		if open < 0 {
			break
		}
		open += p.pos
		end := strings.Index(p.src[open:], "}}")
		if end < 0 {
			break
		}
		end += open + 2

		nodes = appendText(nodes, p.src[p.pos:open])
		raw := p.src[open:end]
		tag := strings.TrimSpace(raw[2 : len(raw)-2])
		p.pos = end

		switch {
		case inIf && tag == "/if":
			return nodes, "/if"
		case inIf && allowElse && tag == "else":
			return nodes, "else"
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			nodes = append(nodes, p.parseIf(raw, strings.TrimSpace(strings.TrimPrefix(tag, "#if")))...)
		case tag == "else" || tag == "/if" || tag == "":
			nodes = appendText(nodes, raw)
		default:
			nodes = append(nodes, node{kind: varNode, text: tag, raw: raw})
		}
	}
	nodes = appendText(nodes, p.src[p.pos:])
	p.pos = len(p.src)
	return nodes, ""
}

// parseIf parses the body of a conditional whose opening tag was raw. An
// unterminated conditional degrades to its literal opening tag followed by
// the parsed body.
func (p *parser) parseIf(raw, name string) []node {
	then, stop := p.parse(true, true)
	cond := node{kind: ifNode, text: name, then: then}
	if stop == "else" {
		cond.otherwise, stop = p.parse(true, false)
	}
	if stop == "/if" && name != "" {
		return []node{cond}
	}
	degraded := append([]node{{kind: textNode, text: raw}}, then...)
	return append(degraded, cond.otherwise...)
}

func appendText(nodes []node, text string) []node {
	if text == "" {
		return nodes
	}
	return append(nodes, node{kind: textNode, text: text})
}
