package rql

import (
	"sync"

	"github.com/grafana/regexp"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Env is the environment compiled predicates run against. One Env is filled
// per row from a pool.
type Env struct {
	ID              int
	Node            string
	Timestamp       int // unix microseconds
	Severity        int
	ErlangPid       string
	Subsystem       int
	Message         string
	MessageLower    string
	Labels          int
	DocURLID        int
	ResolutionURLID int
}

// LabelsAny reports whether any bit of mask is set.
func (e *Env) LabelsAny(mask int) bool { return e.Labels&mask != 0 }

// LabelsAll reports whether every bit of mask is set.
func (e *Env) LabelsAll(mask int) bool { return e.Labels&mask == mask }

// Re matches s against pattern. Patterns are validated at compile time, so a
// pattern that fails to compile here simply does not match.
func (e *Env) Re(s, pattern string) bool {
	re, ok := regexCache.Get(pattern)
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false
		}
		regexCache.Add(pattern, re)
	}
	return re.MatchString(s)
}

const regexCacheSize = 512

var regexCache = func() *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](regexCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

var envPool = sync.Pool{
	New: func() any { return new(Env) },
}

func (e *Env) load(r *Row) {
	e.ID = int(r.ID)
	e.Node = r.Node
	e.Timestamp = int(r.Timestamp.UnixMicro())
	e.Severity = int(r.Severity)
	e.ErlangPid = r.ErlangPid
	e.Subsystem = int(r.SubsystemID)
	e.Message = r.Message
	e.MessageLower = r.messageLower()
	e.Labels = int(r.Labels)
	e.DocURLID = int(r.DocURLID)
	e.ResolutionURLID = int(r.ResolutionURLID)
}
