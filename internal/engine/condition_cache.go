package engine

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionCache holds compiled edge-condition programs, LRU-evicted at a
// fixed capacity. Conditions repeat heavily across runs of the same
// workflow, so compiling each distinct expression once amortizes the
// expr-compile cost over every run on this instance.
type ConditionCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type conditionEntry struct {
	expression string
	program    *vm.Program
}

// NewConditionCache returns a cache bounded to capacity compiled programs.
func NewConditionCache(capacity int) *ConditionCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ConditionCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the compiled program for expression, if cached.
func (cc *ConditionCache) Get(expression string) (*vm.Program, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	elem, ok := cc.entries[expression]
	if !ok {
		return nil, false
	}
	cc.order.MoveToFront(elem)
	return elem.Value.(*conditionEntry).program, true
}

// Put stores a compiled program, evicting the least recently used entry
// when the cache is full.
func (cc *ConditionCache) Put(expression string, program *vm.Program) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if elem, ok := cc.entries[expression]; ok {
		cc.order.MoveToFront(elem)
		elem.Value.(*conditionEntry).program = program
		return
	}

	cc.entries[expression] = cc.order.PushFront(&conditionEntry{expression: expression, program: program})

	if cc.order.Len() > cc.capacity {
		oldest := cc.order.Back()
		if oldest != nil {
			cc.order.Remove(oldest)
			delete(cc.entries, oldest.Value.(*conditionEntry).expression)
		}
	}
}

// Len returns the number of cached programs.
func (cc *ConditionCache) Len() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.order.Len()
}

// Clear drops every cached program.
func (cc *ConditionCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.entries = make(map[string]*list.Element)
	cc.order = list.New()
}

// CompileAndCache resolves expression to a compiled boolean program,
// compiling and caching it on first sight. env supplies the variables the
// expression may reference (the source node's output and id).
func (cc *ConditionCache) CompileAndCache(expression string, env interface{}) (*vm.Program, error) {
	if program, ok := cc.Get(expression); ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}

	cc.Put(expression, program)
	return program, nil
}
