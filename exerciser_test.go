package layered

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	"github.com/stretchr/testify/assert"
)

// expected is the exerciser's model. Commands never modify an expected in
// place; NextState returns a changed copy.
type expected struct {
	entries  map[uint]uint
	order    []uint
	snapshot [nSnapshots][]Entry[uint, uint]
}

type system struct {
	r        Record[uint, uint]
	snapshot [nSnapshots]*Record[uint, uint]
	cmdCount int
}

type xentry struct {
	Key   uint
	Value uint
}

const (
	ukeymax    = 63
	uimax      = 99_999
	nSnapshots = 5
)

var (
	cmdCount     = 0
	maxCacheSize = 0
	debug        = false
)

func progress(i interface{}) {
	if debug {
		fmt.Printf("%v\n", i)
	}
}

func (e *expected) clone() *expected {
	c := &expected{
		entries:  make(map[uint]uint, len(e.entries)),
		order:    slices.Clone(e.order),
		snapshot: e.snapshot,
	}
	for k, v := range e.entries {
		c.entries[k] = v
	}
	return c
}

func (e *expected) put(k, v uint) {
	if _, ok := e.entries[k]; !ok {
		e.order = append(e.order, k)
	}
	e.entries[k] = v
}

func (e *expected) slice() []Entry[uint, uint] {
	out := make([]Entry[uint, uint], 0, len(e.order))
	for _, k := range e.order {
		out = append(out, Entry[uint, uint]{k, e.entries[k]})
	}
	return out
}

func pass(i interface{}) *gopter.PropResult {
	progress(i)
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func fail(format string, args ...interface{}) *gopter.PropResult {
	fmt.Printf(format+"\n", args...)
	return &gopter.PropResult{Status: gopter.PropFalse}
}

var MergeCommand = &commands.ProtoCommand{
	Name: "MergeCache",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		sys := s.(*system)
		if sys.r.CacheLen() > maxCacheSize {
			maxCacheSize = sys.r.CacheLen()
		}
		sys.r = sys.r.MergeCache()
		sys.cmdCount++
		return sys.r.CacheLen()
	},
	NextStateFunc:    func(state commands.State) commands.State { return state },
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		if result.(int) != 0 {
			return fail("mergePostCondition: cache has %d entries after merge", result)
		}
		return pass("MergeCache")
	},
}

var LenCommand = &commands.ProtoCommand{
	Name: "Len",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		s.(*system).cmdCount++
		return s.(*system).r.Len()
	},
	NextStateFunc:    func(state commands.State) commands.State { return state },
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		if len(state.(*expected).entries) != result.(int) {
			return fail("lenPostCondition: expected=%d, actual=%d", len(state.(*expected).entries), result)
		}
		return pass("Len")
	},
}

var ToSliceCommand = &commands.ProtoCommand{
	Name: "ToSlice",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		s.(*system).cmdCount++
		return s.(*system).r.ToSlice()
	},
	NextStateFunc:    func(state commands.State) commands.State { return state },
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		want := state.(*expected).slice()
		if !slices.Equal(want, result.([]Entry[uint, uint])) {
			return fail("toSlicePostCondition: expected=%v, actual=%v", want, result)
		}
		return pass("ToSlice")
	},
}

var DoubleCommand = &commands.ProtoCommand{
	Name: "Map(double)",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		sys := s.(*system)
		sys.r = sys.r.Map(func(v uint, _ uint) uint { return v * 2 })
		sys.cmdCount++
		return sys.r.IsDirty()
	},
	NextStateFunc: func(state commands.State) commands.State {
		s := state.(*expected).clone()
		for k, v := range s.entries {
			s.entries[k] = v * 2
		}
		return s
	},
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		if result.(bool) {
			return fail("mapPostCondition: result is dirty")
		}
		return pass("Map(double)")
	},
}

var OddCommand = &commands.ProtoCommand{
	Name: "Filter(odd)",
	RunFunc: func(s commands.SystemUnderTest) commands.Result {
		sys := s.(*system)
		sys.r = sys.r.Filter(func(v uint, _ uint) bool { return v%2 == 1 })
		sys.cmdCount++
		return sys.r.IsDirty()
	},
	NextStateFunc: func(state commands.State) commands.State {
		s := state.(*expected).clone()
		s.order = slices.DeleteFunc(s.order, func(k uint) bool {
			if s.entries[k]%2 == 1 {
				return false
			}
			delete(s.entries, k)
			return true
		})
		return s
	},
	PreConditionFunc: func(state commands.State) bool { return true },
	PostConditionFunc: func(state commands.State, result commands.Result) *gopter.PropResult {
		if result.(bool) {
			return fail("filterPostCondition: result is dirty")
		}
		return pass("Filter(odd)")
	},
}

type snapshotCommand uint

func (n snapshotCommand) Run(s commands.SystemUnderTest) commands.Result {
	slot := int(n) % nSnapshots
	cur := s.(*system).r
	s.(*system).snapshot[slot] = &cur
	return nil
}

func (n snapshotCommand) NextState(state commands.State) commands.State {
	s := state.(*expected).clone()
	s.snapshot[int(n)%nSnapshots] = s.slice()
	return s
}

func (n snapshotCommand) PreCondition(state commands.State) bool {
	return true
}

func (n snapshotCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return pass(n)
}

func (n snapshotCommand) String() string {
	return fmt.Sprintf("Snapshot(%d)", int(n)%nSnapshots)
}

var genSnapshot = uintCommandGen(
	func(slot uint) commands.Command { return snapshotCommand(slot) },
	func(command interface{}) uint { return uint(command.(snapshotCommand)) })

// checkSnapshotCommand verifies that a snapshotted version hasn't been
// disturbed by anything done to its successors.
type checkSnapshotCommand uint

func (n checkSnapshotCommand) Run(s commands.SystemUnderTest) commands.Result {
	snapshot := s.(*system).snapshot[int(n)%nSnapshots]
	if snapshot == nil {
		return []Entry[uint, uint](nil)
	}
	return snapshot.ToSlice()
}

func (n checkSnapshotCommand) NextState(state commands.State) commands.State {
	return state
}

func (n checkSnapshotCommand) PreCondition(state commands.State) bool {
	return true
}

func (n checkSnapshotCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	want := state.(*expected).snapshot[int(n)%nSnapshots]
	got := result.([]Entry[uint, uint])
	if len(want) != len(got) || !slices.Equal(want, got) {
		return fail("checkSnapshotPostCondition: expected=%v, actual=%v", want, got)
	}
	return pass(n)
}

func (n checkSnapshotCommand) String() string {
	return fmt.Sprintf("CheckSnapshot(%d)", int(n)%nSnapshots)
}

var genCheckSnapshot = uintCommandGen(
	func(slot uint) commands.Command { return checkSnapshotCommand(slot) },
	func(command interface{}) uint { return uint(command.(checkSnapshotCommand)) })

type fetchCommand uint

func (key fetchCommand) Run(s commands.SystemUnderTest) commands.Result {
	s.(*system).cmdCount++
	v, err := s.(*system).r.FetchOrError(uint(key))
	if err != nil {
		return err
	}
	return v
}

func (key fetchCommand) NextState(state commands.State) commands.State {
	return state
}

func (key fetchCommand) PreCondition(state commands.State) bool {
	return true
}

func (key fetchCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	want, ok := state.(*expected).entries[uint(key)]
	switch result := result.(type) {
	case error:
		if ok || !errors.Is(result, ErrKeyNotFound) {
			return fail("fetchPostCondition: (key=%d) expected=%v actual=%v", key, want, result)
		}
	case uint:
		if !ok || want != result {
			return fail("fetchPostCondition: (key=%d) expected=%v,%v actual=%v", key, want, ok, result)
		}
	}
	return pass(key)
}

func (key fetchCommand) String() string {
	return fmt.Sprintf("Fetch(%d)", key)
}

var genFetch = uintCommandGen(
	func(key uint) commands.Command { return fetchCommand(key) },
	func(command interface{}) uint { return uint(command.(fetchCommand)) })

type removeCommand uint

func (key removeCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	sys.r = sys.r.Remove(uint(key))
	sys.cmdCount++
	return sys.r.Has(uint(key))
}

func (key removeCommand) NextState(state commands.State) commands.State {
	s := state.(*expected)
	if _, ok := s.entries[uint(key)]; !ok {
		return s
	}
	s = s.clone()
	delete(s.entries, uint(key))
	s.order = slices.DeleteFunc(s.order, func(k uint) bool { return k == uint(key) })
	return s
}

func (key removeCommand) PreCondition(state commands.State) bool {
	return true
}

func (key removeCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if result.(bool) {
		return fail("removePostCondition: %d still present", key)
	}
	return pass(key)
}

func (key removeCommand) String() string {
	return fmt.Sprintf("Remove(%d)", key)
}

var genRemove = uintCommandGen(
	func(key uint) commands.Command { return removeCommand(key) },
	func(command interface{}) uint { return uint(command.(removeCommand)) })

type putCommand xentry

func (e putCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	sys.r = sys.r.Put(e.Key, e.Value)
	sys.cmdCount++
	v, _ := sys.r.Fetch(e.Key)
	return v
}

func (e putCommand) NextState(state commands.State) commands.State {
	s := state.(*expected).clone()
	s.put(e.Key, e.Value)
	return s
}

func (e putCommand) PreCondition(state commands.State) bool {
	return true
}

func (e putCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if result.(uint) != e.Value {
		return fail("putPostCondition: fetched %v after putting %v", result, e.Value)
	}
	return pass(e)
}

func (e putCommand) String() string {
	return fmt.Sprintf("Put(%d,%d)", e.Key, e.Value)
}

var genPut = entryCommandGen(func(e xentry) commands.Command { return putCommand(e) })

type putAllCommand xentry

func (e putAllCommand) updates() map[uint]uint {
	return map[uint]uint{e.Key: e.Value, (e.Key + 1) % (ukeymax + 1): e.Value + 1}
}

func (e putAllCommand) Run(s commands.SystemUnderTest) commands.Result {
	sys := s.(*system)
	sys.r = sys.r.PutAll(e.updates())
	sys.cmdCount++
	return nil
}

func (e putAllCommand) NextState(state commands.State) commands.State {
	s := state.(*expected).clone()
	for _, u := range sortedEntries(e.updates()) {
		s.put(u.Key, u.Value)
	}
	return s
}

func (e putAllCommand) PreCondition(state commands.State) bool {
	return true
}

func (e putAllCommand) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return pass(e)
}

func (e putAllCommand) String() string {
	return fmt.Sprintf("PutAll(%v)", e.updates())
}

var genPutAll = entryCommandGen(func(e xentry) commands.Command { return putAllCommand(e) })

func entryCommandGen(toCommand func(xentry) commands.Command) gopter.Gen {
	return gen.Struct(reflect.TypeOf(xentry{}), map[string]gopter.Gen{
		"Key":   gen.UIntRange(0, ukeymax),
		"Value": gen.UIntRange(0, uimax),
	}).Map(func(entry xentry) commands.Command {
		return toCommand(entry)
	})
}

func uintCommandGen(toCommand func(uint) commands.Command, fromCommand func(interface{}) uint) gopter.Gen {
	return gen.UIntRange(0, ukeymax).Map(func(value uint) commands.Command {
		return toCommand(value)
	}).WithShrinker(func(v interface{}) gopter.Shrink {
		return gen.UIntShrinker(fromCommand(v)).Map(func(value uint) commands.Command {
			return toCommand(value)
		})
	})
}

var recordCommands = &commands.ProtoCommands{
	NewSystemUnderTestFunc: func(initialState commands.State) commands.SystemUnderTest {
		progress("NewSystem")
		return &system{r: New(initialState.(*expected).entries)}
	},
	DestroySystemUnderTestFunc: func(s commands.SystemUnderTest) {
		cmdCount += s.(*system).cmdCount
	},
	InitialStateGen: gen.MapOf(gen.UIntRange(0, ukeymax), gen.UIntRange(0, uimax)).Map(func(entries map[uint]uint) *expected {
		e := &expected{entries: map[uint]uint{}}
		for _, en := range sortedEntries(entries) {
			e.put(en.Key, en.Value)
		}
		return e
	}),
	InitialPreConditionFunc: func(state commands.State) bool {
		_ = state.(*expected)
		return true
	},
	GenCommandFunc: func(state commands.State) gopter.Gen {
		return gen.Weighted(
			[]gen.WeightedGen{
				{Weight: 10, Gen: genCheckSnapshot},
				{Weight: 100, Gen: genFetch},
				{Weight: 100, Gen: genPut},
				{Weight: 20, Gen: genPutAll},
				{Weight: 50, Gen: genRemove},
				{Weight: 5, Gen: genSnapshot},
				{Weight: 10, Gen: gen.Const(MergeCommand)},
				{Weight: 2, Gen: gen.Const(DoubleCommand)},
				{Weight: 2, Gen: gen.Const(OddCommand)},
				{Weight: 20, Gen: gen.Const(LenCommand)},
				{Weight: 20, Gen: gen.Const(ToSliceCommand)},
			},
		)
	},
}

func TestExerciser(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	if !testing.Short() {
		parameters.MaxSize = 512
	}
	properties := gopter.NewProperties(parameters)
	properties.Property("record exerciser", commands.Prop(recordCommands))
	properties.TestingRun(t)
	if !t.Failed() {
		assert.Greater(t, maxCacheSize, 1)
		fmt.Printf("biggest cache merged: %d\n", maxCacheSize)
		fmt.Printf("successful commands: %d\n", cmdCount)
	}
}
