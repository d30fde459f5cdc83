package changelog

import (
	"strings"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"

	"github.com/iamd3vil/rlsr/git"
)

// Commit is a commit as the changelog template sees it.
type Commit struct {
	Hash      string
	ShortHash string
	Subject   string
	Body      string
	Email     string
	Author    string

	// Handle is the resolved forge handle, or the email when none was
	// found. Empty unless handles are resolved.
	Handle string

	// Type, Scope, Breaking and Description come from the conventional
	// commit header. Type is empty for subjects that do not follow it.
	Type        string
	Scope       string
	Breaking    bool
	Description string
}

func (c Commit) data() map[string]interface{} {
	return map[string]interface{}{
		"hash":        c.Hash,
		"short_hash":  c.ShortHash,
		"subject":     c.Subject,
		"body":        c.Body,
		"email":       c.Email,
		"author":      c.Author,
		"handle":      c.Handle,
		"type":        c.Type,
		"scope":       c.Scope,
		"breaking":    c.Breaking,
		"description": c.Description,
	}
}

// Classify parses the conventional commit header and footers of gc. A
// message whose body does not parse is retried on its subject alone so a
// well-formed header is still recognised.
func Classify(gc git.Commit) Commit {
	c := Commit{
		Hash:        gc.Hash,
		ShortHash:   gc.ShortHash,
		Subject:     gc.Subject,
		Body:        gc.Body,
		Email:       gc.AuthorEmail,
		Author:      gc.AuthorName,
		Description: gc.Subject,
	}

	cc, ok := parse(strings.TrimSpace(gc.Message))
	if !ok {
		cc, ok = parse(gc.Subject)
	}
	if !ok {
		return c
	}

	c.Type = cc.Type
	c.Description = cc.Description
	if cc.Scope != nil {
		c.Scope = *cc.Scope
	}
	c.Breaking = cc.IsBreakingChange()
	return c
}

func parse(message string) (*conventionalcommits.ConventionalCommit, bool) {
	if message == "" {
		return nil, false
	}
	machine := parser.NewMachine(parser.WithTypes(conventionalcommits.TypesFreeForm))
	msg, err := machine.Parse([]byte(message))
	if err != nil || msg == nil {
		return nil, false
	}
	cc, ok := msg.(*conventionalcommits.ConventionalCommit)
	if !ok || cc.Type == "" {
		return nil, false
	}
	return cc, true
}
