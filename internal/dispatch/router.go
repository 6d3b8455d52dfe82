package dispatch

import (
	"sort"
	"strconv"
	"strings"

	gouuid "github.com/nu7hatch/gouuid"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/message"
)

// CaptureType is the type a typed path-parameter capture (":name:TYPE")
// parses as.
type CaptureType int

const (
	CaptureString CaptureType = iota
	CaptureInt
	CaptureUint
	CaptureUUID
)

func parseCaptureType(token string) (CaptureType, bool) {
	switch token {
	case "int":
		return CaptureInt, true
	case "uint", "ulong":
		return CaptureUint, true
	case "string":
		return CaptureString, true
	case "uuid":
		return CaptureUUID, true
	default:
		return 0, false
	}
}

func validateCapture(typ CaptureType, segment string) bool {
	if segment == "" {
		return false
	}
	switch typ {
	case CaptureInt:
		_, err := strconv.ParseInt(segment, 10, 64)
		return err == nil
	case CaptureUint:
		_, err := strconv.ParseUint(segment, 10, 64)
		return err == nil
	case CaptureUUID:
		_, err := gouuid.ParseHex(segment)
		return err == nil
	default: // CaptureString
		return true
	}
}

// Router is the segment-based path router. It is built via
// Handle calls at startup and is read-only thereafter, so it is safely
// shared by every worker.
//
// The structure — a tree of nodes keyed by literal segment, with side
// edges for captures and wildcards — is grounded on the registry trie
// gorouter uses for its Host-header routing table, adapted here from a
// single-key trie to one with ordered alternative edge kinds, since a
// path router must try several pattern shapes at each segment rather
// than a single canonical key.
type Router struct {
	root    *node
	nextSeq int
}

type node struct {
	literal    map[string]*node
	captures   []*captureEdge
	star       *node
	doubleStar *node
	handlers   map[message.Method]Handler
	seq        int
}

type captureEdge struct {
	name     string
	typ      CaptureType
	explicit bool // true for ":name:TYPE", false for bare ":name"
	child    *node
	seq      int
}

func newNode() *node {
	return &node{literal: make(map[string]*node), handlers: make(map[message.Method]Handler)}
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{root: newNode()}
}

// Handle registers handler for (method, pattern). Pattern is a
// slash-separated sequence of literal segments, "*", "**" (trailing
// only, at most once), ":name", or ":name:TYPE".
func (r *Router) Handle(method message.Method, pattern string, handler Handler) error {
	segments := splitPattern(pattern)

	for i, seg := range segments {
		if seg == "**" && i != len(segments)-1 {
			return httperr.Internal("\"**\" is only allowed as the trailing pattern segment")
		}
		if seg == "**" && strings.Count(pattern, "**") > 1 {
			return httperr.Internal("at most one \"**\" is allowed per pattern")
		}
	}

	n := r.root
	for _, seg := range segments {
		switch {
		case seg == "**":
			if n.doubleStar == nil {
				n.doubleStar = newNode()
			}
			n = n.doubleStar
		case seg == "*":
			if n.star == nil {
				n.star = newNode()
			}
			n = n.star
		case strings.HasPrefix(seg, ":"):
			name, typ, explicit, err := parseCaptureSegment(seg)
			if err != nil {
				return err
			}
			n = n.captureChild(name, typ, explicit, r.nextSequence())
		default:
			child, ok := n.literal[seg]
			if !ok {
				child = newNode()
				n.literal[seg] = child
			}
			n = child
		}
	}

	n.handlers[method] = handler
	if n.seq == 0 {
		n.seq = r.nextSequence()
	}
	return nil
}

func (r *Router) nextSequence() int {
	r.nextSeq++
	return r.nextSeq
}

func (n *node) captureChild(name string, typ CaptureType, explicit bool, seq int) *node {
	for _, e := range n.captures {
		if e.name == name && e.typ == typ && e.explicit == explicit {
			return e.child
		}
	}
	child := newNode()
	n.captures = append(n.captures, &captureEdge{name: name, typ: typ, explicit: explicit, child: child, seq: seq})
	return child
}

func parseCaptureSegment(seg string) (name string, typ CaptureType, explicit bool, err error) {
	body := strings.TrimPrefix(seg, ":")
	parts := strings.SplitN(body, ":", 2)
	name = parts[0]
	if name == "" {
		return "", 0, false, httperr.Internal("path parameter capture must have a name")
	}
	if len(parts) == 1 {
		return name, CaptureString, false, nil
	}
	typ, ok := parseCaptureType(parts[1])
	if !ok {
		return "", 0, false, httperr.Internal("unknown path parameter type \"" + parts[1] + "\"")
	}
	return name, typ, true, nil
}

func splitPattern(pattern string) []string {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchResult carries the handler a path+method resolved to and the
// path parameters captured along the way.
type matchResult struct {
	handler Handler
	params  map[string]string
}

// Match resolves method and path to a handler. No
// matching pattern at all is httperr.KindNotFound; a pattern matches the
// path but not for this method is httperr.KindMethodNotAllowed (with the
// set of methods that were registered there); GET handlers also answer
// HEAD requests when no explicit HEAD route exists, with the body
// suppressed by the caller (server.handleConn, via
// respwriter.Writer.SuppressBody) but Content-Length preserved.
func (r *Router) Match(method message.Method, path string) (Handler, map[string]string, error) {
	segments := splitPattern(path)

	var pathMatches []*node
	result := r.root.match(method, segments, map[string]string{}, &pathMatches)
	if result != nil {
		return result.handler, result.params, nil
	}
	if len(pathMatches) == 0 {
		return nil, nil, httperr.NotFound("no route matches " + path)
	}

	seen := map[string]bool{}
	var allowed []string
	for _, n := range pathMatches {
		for _, m := range n.allowedMethods() {
			if !seen[m] {
				seen[m] = true
				allowed = append(allowed, m)
			}
		}
	}
	sort.Strings(allowed)
	return nil, nil, httperr.MethodNotAllowed(allowed)
}

// handlerFor returns the handler this node serves for method, falling
// back to a registered GET handler when method is HEAD and no explicit
// HEAD route exists.
func (n *node) handlerFor(method message.Method) (Handler, bool) {
	if h, ok := n.handlers[method]; ok {
		return h, true
	}
	if method == message.MethodHead {
		if h, ok := n.handlers[message.MethodGet]; ok {
			return h, true
		}
	}
	return nil, false
}

func (n *node) allowedMethods() []string {
	methods := make([]string, 0, len(n.handlers))
	for m := range n.handlers {
		methods = append(methods, m.String())
	}
	sort.Strings(methods)
	return methods
}

// match performs a specificity-ordered, backtracking search: literal >
// typed capture > untyped capture > "*" > "**", ties broken by
// registration order within a category. It is method-aware: a terminal
// node whose path matches but that has no handler for method does not
// end the search, since a less-specific pattern elsewhere in the tree
// may still serve method. Every such path-only match is appended to
// pathMatches so Match can report 405 with the full set of methods
// registered across all patterns that matched the path.
func (n *node) match(method message.Method, segments []string, params map[string]string, pathMatches *[]*node) *matchResult {
	if len(segments) == 0 {
		return n.leafMatch(method, params, pathMatches)
	}

	seg, rest := segments[0], segments[1:]

	if child, ok := n.literal[seg]; ok {
		if m := child.match(method, rest, params, pathMatches); m != nil {
			return m
		}
	}

	for _, edge := range n.orderedCaptures(true) {
		if m := tryCapture(edge, method, seg, rest, params, pathMatches); m != nil {
			return m
		}
	}
	for _, edge := range n.orderedCaptures(false) {
		if m := tryCapture(edge, method, seg, rest, params, pathMatches); m != nil {
			return m
		}
	}

	if n.star != nil {
		if m := n.star.match(method, rest, params, pathMatches); m != nil {
			return m
		}
	}

	if n.doubleStar != nil {
		if m := n.doubleStar.leafMatch(method, params, pathMatches); m != nil {
			return m
		}
	}

	return nil
}

// leafMatch treats n as a terminal node for the remaining (possibly
// empty) path: a "**" edge absorbs zero or more trailing segments, so
// it is checked here rather than by recursing on segments.
func (n *node) leafMatch(method message.Method, params map[string]string, pathMatches *[]*node) *matchResult {
	if h, ok := n.handlerFor(method); ok {
		return &matchResult{handler: h, params: cloneParams(params)}
	}
	if len(n.handlers) > 0 {
		*pathMatches = append(*pathMatches, n)
	}
	if n.doubleStar != nil {
		return n.doubleStar.leafMatch(method, params, pathMatches)
	}
	return nil
}

func tryCapture(edge *captureEdge, method message.Method, seg string, rest []string, params map[string]string, pathMatches *[]*node) *matchResult {
	if !validateCapture(edge.typ, seg) {
		return nil
	}
	params[edge.name] = seg
	m := edge.child.match(method, rest, params, pathMatches)
	delete(params, edge.name)
	return m
}

// orderedCaptures returns this node's capture edges of the requested
// explicitness, sorted by registration order.
func (n *node) orderedCaptures(explicit bool) []*captureEdge {
	var out []*captureEdge
	for _, e := range n.captures {
		if e.explicit == explicit {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
