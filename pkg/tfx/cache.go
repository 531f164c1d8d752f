package tfx

import (
	"encoding/hex"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"

	"github.com/chazu/tagview/tag"
)

// DefaultProgramCacheSize is used when NewProgramCache is given a
// non-positive size.
const DefaultProgramCacheSize = 1024

// Digest identifies a bytecode buffer by content.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:8]) }

// Program is a parsed bytecode buffer. When parsing failed Err is set and
// Ops is nil.
type Program struct {
	Digest Digest
	Ops    []Instruction
	Err    error

	interp *Interpreter
}

// Evaluate runs the program, or returns the parse error.
func (p *Program) Evaluate(env *Env) error {
	if p.Err != nil {
		return p.Err
	}
	return p.interp.Evaluate(env)
}

// Disassemble lists the program's instructions.
func (p *Program) Disassemble(constants []mgl32.Vec4) string {
	return Disassemble(p.Ops, constants)
}

// ProgramCache memoizes ParseAll by bytecode content. Failed parses are
// cached too, so a malformed stage is reported once. Safe for concurrent
// use.
type ProgramCache struct {
	programs *lru.Cache[Digest, *Program]
}

// NewProgramCache returns a cache holding up to size programs.
func NewProgramCache(size int) (*ProgramCache, error) {
	if size <= 0 {
		size = DefaultProgramCacheSize
	}
	c, err := lru.New[Digest, *Program](size)
	if err != nil {
		return nil, fmt.Errorf("tfx: program cache: %w", err)
	}
	return &ProgramCache{programs: c}, nil
}

// Load returns the parsed program for data, parsing on first use.
func (c *ProgramCache) Load(data []byte, endian tag.Endian) *Program {
	d := Digest(blake3.Sum256(data))
	if p, ok := c.programs.Get(d); ok {
		return p
	}
	p := &Program{Digest: d}
	p.Ops, p.Err = ParseAll(data, endian)
	if p.Err != nil {
		log.Warningf("bytecode %s: %s", d, p.Err)
	} else {
		p.interp = NewInterpreter(p.Ops)
	}
	c.programs.Add(d, p)
	return p
}

// Len returns the number of cached programs.
func (c *ProgramCache) Len() int {
	return c.programs.Len()
}

// Purge empties the cache.
func (c *ProgramCache) Purge() {
	c.programs.Purge()
}
