// Package catalog owns the versioned Problem and Session document.
//
// The document is a YAML file; every mutation bumps its version and rewrites
// it atomically. Reference structures live next to it as sanitized PDB files.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
)

// Document is the persisted form of the catalog.
type Document struct {
	Version  int             `yaml:"version"`
	Sessions []model.Session `yaml:"sessions"`
	Problems []model.Problem `yaml:"problems"`
}

// UsageFunc reports whether any submission references a problem.
type UsageFunc func(ctx context.Context, problemID string) (bool, error)

// Catalog is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	path  string
	dir   string
	doc   Document
	inUse UsageFunc
	refs  map[string]structure.Structure
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithUsage installs the check guarding problem edits.
func WithUsage(fn UsageFunc) Option {
	return func(c *Catalog) { c.inUse = fn }
}

// Open loads the catalog at path. A missing file yields an empty catalog that
// is created on the first mutation.
func Open(path string, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		path: path,
		dir:  filepath.Dir(path),
		refs: map[string]structure.Structure{},
	}
	for _, opt := range opts {
		opt(c)
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c.doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Version returns the document version.
func (c *Catalog) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.Version
}

// Problem returns a problem and the session it belongs to.
func (c *Catalog) Problem(id string) (model.Problem, model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.problem(id)
	if !ok {
		return model.Problem{}, model.Session{}, false
	}
	s, _ := c.session(p.Session)
	return p, s, true
}

// Problems returns all problems ordered by id number.
func (c *Catalog) Problems() []model.Problem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]model.Problem(nil), c.doc.Problems...)
	sort.Slice(out, func(i, j int) bool { return problemLess(out[i].ID, out[j].ID) })
	return out
}

// SessionProblems returns the problems listed by a session.
func (c *Catalog) SessionProblems(key string) []model.Problem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.session(key)
	if !ok {
		return nil
	}
	var out []model.Problem
	for _, id := range s.Problems {
		if p, ok := c.problem(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// Sessions returns all sessions ordered by key.
func (c *Catalog) Sessions() []model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]model.Session(nil), c.doc.Sessions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Session looks up a session by key.
func (c *Catalog) Session(key string) (model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session(key)
}

// Active returns the active session, if any.
func (c *Catalog) Active() (model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.doc.Sessions {
		if s.Status == model.SessionActive {
			return s, true
		}
	}
	return model.Session{}, false
}

// TargetPath returns the absolute path of a problem's reference structure.
func (c *Catalog) TargetPath(p model.Problem) string {
	if filepath.IsAbs(p.TargetFile) {
		return p.TargetFile
	}
	return filepath.Join(c.dir, p.TargetFile)
}

// Reference parses and caches a problem's reference structure.
func (c *Catalog) Reference(problemID string) (structure.Structure, error) {
	c.mu.RLock()
	ref, cached := c.refs[problemID]
	p, ok := c.problem(problemID)
	c.mu.RUnlock()
	if cached {
		return ref, nil
	}
	if !ok {
		return structure.Structure{}, fmt.Errorf("problem %s: %w", problemID, ErrNotFound)
	}
	ref, err := structure.ParseFile(c.TargetPath(p))
	if err != nil {
		return structure.Structure{}, fmt.Errorf("reference for %s: %w", problemID, err)
	}
	c.mu.Lock()
	c.refs[problemID] = ref
	c.mu.Unlock()
	return ref, nil
}

// PutSession creates or renames a session. Status and problem list of an
// existing session are kept.
func (c *Catalog) PutSession(key, name string) (model.Session, error) {
	if key == "" {
		return model.Session{}, fmt.Errorf("%w: empty session key", ErrUnknownSession)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.doc.Sessions {
		if c.doc.Sessions[i].Key == key {
			c.doc.Sessions[i].Name = name
			return c.doc.Sessions[i], c.save()
		}
	}
	s := model.Session{Key: key, Name: name, Status: model.SessionUpcoming}
	c.doc.Sessions = append(c.doc.Sessions, s)
	return s, c.save()
}

// Activate makes key the active session and archives the previously active one.
func (c *Catalog) Activate(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.session(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	for i := range c.doc.Sessions {
		s := &c.doc.Sessions[i]
		switch {
		case s.Key == key:
			s.Status = model.SessionActive
		case s.Status == model.SessionActive:
			s.Status = model.SessionArchived
		}
	}
	return c.save()
}

// Archive closes a session to new submissions.
func (c *Catalog) Archive(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.doc.Sessions {
		if c.doc.Sessions[i].Key == key {
			c.doc.Sessions[i].Status = model.SessionArchived
			return c.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSession, key)
}

// RemoveFromSession drops a problem from a session's list; the problem and
// its reference file are kept.
func (c *Catalog) RemoveFromSession(key, problemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.doc.Sessions {
		s := &c.doc.Sessions[i]
		if s.Key != key {
			continue
		}
		for j, id := range s.Problems {
			if id == problemID {
				s.Problems = append(s.Problems[:j], s.Problems[j+1:]...)
				return c.save()
			}
		}
		return fmt.Errorf("%w: %s not in %s", ErrProblemNotFound, problemID, key)
	}
	return fmt.Errorf("%w: %s", ErrUnknownSession, key)
}

// UpdateProblem replaces a problem's editable fields. Problems with submissions
// are immutable unless force is set.
func (c *Catalog) UpdateProblem(ctx context.Context, p model.Problem, force bool) error {
	if err := checkProblem(&p); err != nil {
		return err
	}
	if !force && c.inUse != nil {
		used, err := c.inUse(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("check usage: %w", err)
		}
		if used {
			return fmt.Errorf("%w: %s", ErrProblemInUse, p.ID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.doc.Problems {
		cur := &c.doc.Problems[i]
		if cur.ID != p.ID {
			continue
		}
		if p.Session != cur.Session {
			return fmt.Errorf("%w: session of %s cannot change", ErrInvalidProblem, p.ID)
		}
		p.TargetFile, p.ResidueCount = cur.TargetFile, cur.ResidueCount
		*cur = p
		delete(c.refs, p.ID)
		return c.save()
	}
	return fmt.Errorf("problem %s: %w", p.ID, ErrNotFound)
}

func (c *Catalog) problem(id string) (model.Problem, bool) {
	for _, p := range c.doc.Problems {
		if p.ID == id {
			return p, true
		}
	}
	return model.Problem{}, false
}

func (c *Catalog) session(key string) (model.Session, bool) {
	for _, s := range c.doc.Sessions {
		if s.Key == key {
			return s, true
		}
	}
	return model.Session{}, false
}

// save writes the document with a bumped version. Callers hold the write lock.
func (c *Catalog) save() error {
	c.doc.Version++
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.doc); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return writeAtomic(c.path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var problemIDPattern = regexp.MustCompile(`^problem_(\d+)$`)

func problemNumber(id string) int {
	m := problemIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func problemLess(a, b string) bool {
	na, nb := problemNumber(a), problemNumber(b)
	if na != nb {
		return na < nb
	}
	return a < b
}
