package ruby

import (
	"strings"
	"sync"
	"unicode"

	"github.com/michaelsabo/RubyGateway/interp"
)

// IDKind classifies the syntactic shape an identifier must have.
type IDKind int

const (
	IDMethod IDKind = iota
	IDConstant
	IDInstanceVar
	IDClassVar
	IDGlobalVar
)

var idKindNames = [...]string{
	IDMethod:      "method",
	IDConstant:    "constant",
	IDInstanceVar: "instance variable",
	IDClassVar:    "class variable",
	IDGlobalVar:   "global variable",
}

func (k IDKind) String() string {
	if k < 0 || int(k) >= len(idKindNames) {
		return "identifier"
	}
	return idKindNames[k]
}

// operatorMethods are the method names that are operators rather than plain
// identifiers.
var operatorMethods = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "**": true,
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"<=>": true, "===": true, "=~": true, "!~": true, "!": true,
	"<<": true, ">>": true, "&": true, "|": true, "^": true, "~": true,
	"+@": true, "-@": true, "[]": true, "[]=": true,
}

// identBody reports whether s is a plain identifier: a letter or underscore
// followed by letters, digits, or underscores.
func identBody(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// constSegment reports whether s is a single constant path segment: an
// uppercase letter followed by an identifier body.
func constSegment(s string) bool {
	if s == "" {
		return false
	}
	first := []rune(s)[0]
	if !unicode.IsUpper(first) {
		return false
	}
	return identBody(s)
}

// validName checks the syntactic shape required for an identifier of the
// given kind. The check is purely host-side.
func validName(name string, kind IDKind) bool {
	switch kind {
	case IDMethod:
		if operatorMethods[name] {
			return true
		}
		// Plain method names may end with ?, ! or =.
		body := name
		if n := len(body); n > 0 {
			switch body[n-1] {
			case '?', '!', '=':
				body = body[:n-1]
			}
		}
		return identBody(body)
	case IDConstant:
		segments := strings.Split(name, "::")
		for _, seg := range segments {
			if !constSegment(seg) {
				return false
			}
		}
		return true
	case IDInstanceVar:
		// Exactly one leading @.
		return strings.HasPrefix(name, "@") && !strings.HasPrefix(name, "@@") &&
			identBody(name[1:])
	case IDClassVar:
		return strings.HasPrefix(name, "@@") && identBody(name[2:])
	case IDGlobalVar:
		return strings.HasPrefix(name, "$") && identBody(name[1:])
	}
	return false
}

// ---------------------------------------------------------------------------
// Identifier cache
// ---------------------------------------------------------------------------

type identKey struct {
	name string
	kind IDKind
}

// identCache memoizes successful (name, kind) resolutions for the process
// lifetime. Interning is idempotent but not free, so hits skip the
// interpreter entirely.
type identCache struct {
	mu  sync.RWMutex
	ids map[identKey]interp.ID
}

func (c *identCache) lookup(key identKey) (interp.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[key]
	return id, ok
}

func (c *identCache) store(key identKey, id interp.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids == nil {
		c.ids = make(map[identKey]interp.ID)
	}
	c.ids[key] = id
}

// resolveID validates name against the shape rules for kind, then interns it,
// consulting the cache first. A shape failure returns BadIdentifierError
// without any interpreter interaction.
func (g *Gateway) resolveID(name string, kind IDKind) (interp.ID, error) {
	if !validName(name, kind) {
		return 0, &BadIdentifierError{Name: name, Kind: kind}
	}

	key := identKey{name: name, kind: kind}
	if id, ok := g.idents.lookup(key); ok {
		return id, nil
	}

	res, err := g.worker.do(func(vm interp.VM) any {
		return vm.Intern(name)
	})
	if err != nil {
		return 0, err
	}
	id := res.(interp.ID)
	g.idents.store(key, id)
	return id, nil
}
