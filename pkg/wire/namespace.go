package wire

import "strings"

// Namespace is a validated "<database>.<collection>" identifier.
type Namespace string

// Database returns the portion of the namespace before the first dot.
func (n Namespace) Database() string {
	s := string(n)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Collection returns the portion of the namespace after the first dot.
func (n Namespace) Collection() string {
	s := string(n)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// Valid reports whether the namespace satisfies the boundary validity rules:
// non-empty, contains exactly one database component, no NUL bytes.
func (n Namespace) Valid() bool {
	s := string(n)
	if s == "" {
		return false
	}
	if strings.IndexByte(s, 0) >= 0 {
		return false
	}
	dot := strings.IndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return false
	}
	return true
}

// IsCommand reports whether the namespace names a "$cmd" pseudo-collection.
func (n Namespace) IsCommand() bool {
	return strings.Contains(string(n), ".$cmd")
}

// adminInfix is the namespace infix recognized for the three synthetic
// admin pseudo-commands.
const adminInfix = ".$cmd.sys."

// IsAdminPseudoCommand reports whether the namespace contains the admin
// pseudo-command infix and returns the text after it as the verb. The verb is
// not checked against the three recognized verbs; the admin sub-dispatcher
// rejects unknown ones.
func (n Namespace) IsAdminPseudoCommand() (verb string, ok bool) {
	s := string(n)
	idx := strings.Index(s, adminInfix)
	if idx < 0 {
		return "", false
	}
	return s[idx+len(adminInfix):], true
}

// AdminVerbs recognized by the admin sub-dispatcher.
const (
	AdminVerbInProg = "inprog"
	AdminVerbKillOp = "killop"
	AdminVerbUnlock = "unlock"
)
