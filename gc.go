package nyx

// GC is the generational, incremental mark-sweep memory manager spec.md
// §4.6 describes: two generations for heap Objects, a parallel young/old
// split for Envs (spec.md §3: "tracked by the GC separately from
// Values... their own free list, separate byte counter"), a write
// barrier maintaining the remembered set, and a cooperative trigger
// fired only from the OP_GC safe point (spec.md §5).
//
// Objects created by the compiler (constant-pool strings, function
// wrappers) are never registered here — they live off-list for the
// lifetime of their owning Program and are freed when the Program's
// refcount reaches zero (spec.md §3/§9). Only objects allocated at run
// time by the interpreter are tracked, aged, and swept.
type GC struct {
	vm *VM

	youngObjects *Object
	oldObjects   *Object
	youngBytes   int
	oldBytes     int
	youngNext    int
	fullNext     int

	youngEnvs *Env
	oldEnvs   *Env
	envBytes  int

	remembered    []*Object
	rememberedEnv []*Env

	pendingYoung bool
	pendingFull  bool

	sweepOldCursor *Object
	sweepEnvCursor *Env
	sweepingFull   bool

	promotionAge int
	sweepBatch   int
	growthFactor int
	minHeap      int

	minors int
	fulls  int
}

func NewGC(cfg *Config, vm *VM) *GC {
	min := cfg.GetInt("gc.min_heap_bytes")
	return &GC{
		vm:           vm,
		promotionAge: cfg.GetInt("gc.promotion_age"),
		sweepBatch:   cfg.GetInt("gc.sweep_batch"),
		growthFactor: cfg.GetInt("gc.growth_factor"),
		minHeap:      min,
		youngNext:    min,
		fullNext:     min * 2,
	}
}

// --- allocation / tracking ---

// TrackObject links a freshly-constructed Object onto the young list
// and schedules a minor collection if the young generation has grown
// past its threshold. Every runtime allocation site (string
// concatenation, array/map literals, instances, closures, bound
// methods, enum values) must pass through here.
func (gc *GC) TrackObject(o *Object) *Object {
	o.Generation = GenYoung
	o.Next = gc.youngObjects
	gc.youngObjects = o
	gc.youngBytes += o.Size
	if gc.youngBytes > gc.youngNext {
		gc.pendingYoung = true
	}
	return o
}

func (gc *GC) TrackEnv(e *Env) *Env {
	e.Generation = GenYoung
	e.Next = gc.youngEnvs
	gc.youngEnvs = e
	gc.envBytes += e.Size
	if gc.youngBytes+gc.oldBytes+gc.envBytes > gc.fullNext {
		gc.pendingFull = true
	}
	return e
}

func (gc *GC) heapBytes() int { return gc.youngBytes + gc.oldBytes + gc.envBytes }

// --- write barrier ---

// Barrier implements spec.md §4.6's write barrier for a store that
// places v inside owner (SET_PROPERTY, array append/set, map set): if
// owner is old and v reaches into the young generation, owner joins the
// remembered set. Young owners are skipped — the minor collector
// rescans the entire young generation every cycle, so a young-to-young
// or young-to-old reference never needs remembering.
func (gc *GC) Barrier(owner *Object, v Value) {
	if owner == nil || owner.Generation != GenOld || owner.Remembered {
		return
	}
	if valueIsYoung(v) {
		owner.Remembered = true
		gc.remembered = append(gc.remembered, owner)
	}
}

// BarrierEnv is Barrier's counterpart for a SET_VAR into a binding that
// already exists in an old Env.
func (gc *GC) BarrierEnv(owner *Env, v Value) {
	if owner == nil || owner.Generation != GenOld || owner.Remembered {
		return
	}
	if valueIsYoung(v) {
		owner.Remembered = true
		gc.rememberedEnv = append(gc.rememberedEnv, owner)
	}
}

func valueIsYoung(v Value) bool {
	return v.Kind == ValObject && v.Obj != nil && v.Obj.Generation == GenYoung
}

// --- cooperative trigger ---

// MaybeGC is invoked at every OP_GC safe point (spec.md §5: after each
// statement, at each loop back-edge, after scope exits). Scheduling
// (pendingYoung/pendingFull) happens eagerly at allocation time;
// collection itself only ever runs here, so the operand stack and live
// roots are guaranteed stable mid-opcode.
func (gc *GC) MaybeGC() {
	if gc.sweepingFull {
		gc.continueFullSweep()
		return
	}
	if gc.pendingFull {
		gc.pendingFull = false
		gc.fullCollect()
		return
	}
	if gc.pendingYoung {
		gc.pendingYoung = false
		gc.minorCollect()
	}
}

// --- marking ---

func (gc *GC) clearMarks() {
	// The globals Env is never on a tracked list, so it must be
	// un-marked here or markEnv's memoization would skip it (and stop
	// the parent-chain walk dead) on every collection after the first.
	if gc.vm != nil && gc.vm.globals != nil {
		gc.vm.globals.Marked = false
	}
	for o := gc.youngObjects; o != nil; o = o.Next {
		o.Marked = false
	}
	for o := gc.oldObjects; o != nil; o = o.Next {
		o.Marked = false
	}
	for e := gc.youngEnvs; e != nil; e = e.Next {
		e.Marked = false
	}
	for e := gc.oldEnvs; e != nil; e = e.Next {
		e.Marked = false
	}
}

func (gc *GC) markObject(o *Object) {
	if o == nil {
		return
	}
	// Permanent (compile-time constant) objects are never linked onto
	// either generation's list, so clearMarks never resets their mark
	// bit between collections. Memoizing on Marked for them would make
	// every collection after their first skip retracing their
	// children forever. They form a small acyclic graph built once at
	// compile time, so retracing them every collection is cheap and
	// safe from infinite recursion.
	if o.Generation != GenPermanent {
		if o.Marked {
			return
		}
		o.Marked = true
	}
	for _, v := range o.references() {
		gc.markValue(v)
	}
	if o.Tag == ObjFunction && o.fn != nil && o.fn.Env != nil {
		gc.markEnv(o.fn.Env)
	}
}

func (gc *GC) markValue(v Value) {
	if v.Kind == ValObject {
		gc.markObject(v.Obj)
	}
}

func (gc *GC) markEnv(e *Env) {
	for ; e != nil; e = e.parent {
		if e.Marked {
			return
		}
		e.Marked = true
		for _, v := range e.references() {
			gc.markValue(v)
		}
	}
}

// markRoots walks every root spec.md §4.6 lists for a minor collection
// (operand stack, frame bases/environments, module import map, global
// registry). A full collection uses the same root set; it simply traces
// across both generations afterward.
func (gc *GC) markRoots() {
	vm := gc.vm
	if vm == nil {
		return
	}
	for i := 0; i < vm.sp; i++ {
		gc.markValue(vm.stack[i])
	}
	for _, f := range vm.frames {
		if f.env != nil {
			gc.markEnv(f.env)
		}
	}
	if vm.globals != nil {
		gc.markEnv(vm.globals)
	}
	if vm.replEnv != nil {
		gc.markEnv(vm.replEnv)
	}
	if vm.modules != nil {
		for _, p := range vm.modules.programs {
			if p.Exports != nil {
				for _, k := range p.Exports.Keys() {
					v, _ := p.Exports.Get(k)
					gc.markValue(v)
				}
			}
		}
	}
}

// markRemembered marks every young object reachable from the
// remembered set, treating each remembered old object as a black root
// into young space (spec.md §4.6 minor collection step 3).
func (gc *GC) markRemembered() {
	for _, o := range gc.remembered {
		for _, v := range o.references() {
			gc.markValue(v)
		}
		if o.Tag == ObjFunction && o.fn != nil && o.fn.Env != nil {
			gc.markEnv(o.fn.Env)
		}
	}
	for _, e := range gc.rememberedEnv {
		for _, v := range e.references() {
			gc.markValue(v)
		}
	}
}

// --- minor collection ---

func (gc *GC) minorCollect() {
	gc.minors++
	gc.clearMarks()
	gc.markRoots()
	gc.markRemembered()

	gc.youngObjects, gc.youngBytes = gc.sweepYoungObjects()
	gc.youngEnvs, gc.envBytes = gc.sweepYoungEnvs(gc.envBytes)

	// The trace crosses the generation boundary: a live frame env that
	// reaches a promoted array marks it even though only young space is
	// being collected. The young sweep clears young survivors; the old
	// generation has to be un-marked here too, or stale bits would sit
	// on reachable old objects until the next collection's clearMarks.
	for o := gc.oldObjects; o != nil; o = o.Next {
		o.Marked = false
	}
	for e := gc.oldEnvs; e != nil; e = e.Next {
		e.Marked = false
	}

	gc.youngNext = maxInt(gc.youngBytes*gc.growthFactor, gc.minHeap)
	if gc.heapBytes() > gc.fullNext {
		gc.pendingFull = true
	}
}

// sweepYoungObjects ages survivors, promotes objects that cross
// PROMOTION_AGE onto the old list (setting Remembered if the newly
// promoted object still references anything young), and frees the rest.
func (gc *GC) sweepYoungObjects() (*Object, int) {
	var kept *Object
	bytes := 0
	for o := gc.youngObjects; o != nil; {
		next := o.Next
		if !o.Marked {
			o = next
			continue
		}
		o.Marked = false
		o.Age++
		if o.Age >= gc.promotionAge {
			gc.promote(o)
		} else {
			o.Next = kept
			kept = o
			bytes += o.Size
		}
		o = next
	}
	return kept, bytes
}

func (gc *GC) promote(o *Object) {
	o.Generation = GenOld
	o.Next = gc.oldObjects
	gc.oldObjects = o
	gc.oldBytes += o.Size
	if gc.referencesAnyYoung(o) {
		o.Remembered = true
		gc.remembered = append(gc.remembered, o)
	}
}

func (gc *GC) referencesAnyYoung(o *Object) bool {
	for _, v := range o.references() {
		if valueIsYoung(v) {
			return true
		}
	}
	if o.Tag == ObjFunction && o.fn != nil && o.fn.Env != nil && o.fn.Env.Generation == GenYoung {
		return true
	}
	return false
}

func (gc *GC) sweepYoungEnvs(prevBytes int) (*Env, int) {
	var kept *Env
	bytes := 0
	for e := gc.youngEnvs; e != nil; {
		next := e.Next
		if !e.Marked {
			e = next
			continue
		}
		e.Marked = false
		e.Age++
		if e.Age >= gc.promotionAge {
			gc.promoteEnv(e)
		} else {
			e.Next = kept
			kept = e
			bytes += e.Size
		}
		e = next
	}
	return kept, bytes + (gc.oldEnvBytesDelta())
}

// oldEnvBytesDelta exists only so sweepYoungEnvs's return composes with
// gc.envBytes, which also holds old-generation bytes; the old list's
// contribution doesn't change here, so this simply reports it back.
func (gc *GC) oldEnvBytesDelta() int {
	total := 0
	for e := gc.oldEnvs; e != nil; e = e.Next {
		total += e.Size
	}
	return total
}

func (gc *GC) promoteEnv(e *Env) {
	e.Generation = GenOld
	e.Next = gc.oldEnvs
	gc.oldEnvs = e
	if gc.envReferencesYoung(e) {
		e.Remembered = true
		gc.rememberedEnv = append(gc.rememberedEnv, e)
	}
}

func (gc *GC) envReferencesYoung(e *Env) bool {
	for _, v := range e.references() {
		if valueIsYoung(v) {
			return true
		}
	}
	return false
}

// --- full collection ---

func (gc *GC) fullCollect() {
	gc.fulls++
	gc.clearMarks()
	gc.markRoots()

	// Full collection traces everything reachable across both
	// generations in one pass (spec.md §4.6 full collection step 2) —
	// no remembered-set shortcut needed since old space is scanned too.
	gc.markOldSeeds()

	gc.youngObjects, gc.youngBytes = gc.sweepYoungObjects()
	gc.youngEnvs, gc.envBytes = gc.sweepYoungEnvs(gc.envBytes)

	gc.sweepOldCursor = gc.oldObjects
	gc.sweepEnvCursor = gc.oldEnvs
	gc.sweepingFull = true
	gc.remembered = nil
	gc.rememberedEnv = nil
	gc.continueFullSweep()
}

// markOldSeeds marks every currently-marked-reachable old object's
// children so the tracing pass covers old->old and old->young edges
// uniformly, independent of the remembered set (which is rebuilt from
// scratch once the incremental sweep finishes).
func (gc *GC) markOldSeeds() {
	changed := true
	for changed {
		changed = false
		for o := gc.oldObjects; o != nil; o = o.Next {
			if !o.Marked {
				continue
			}
			for _, v := range o.references() {
				if v.Kind == ValObject && !v.Obj.Marked {
					changed = true
				}
				gc.markValue(v)
			}
			if o.Tag == ObjFunction && o.fn != nil && o.fn.Env != nil && !o.fn.Env.Marked {
				changed = true
				gc.markEnv(o.fn.Env)
			}
		}
	}
}

// continueFullSweep advances the old-object and old-env cursors by at
// most SWEEP_BATCH entries (spec.md §4.6 full collection step 4); once
// both cursors are exhausted it rebuilds the remembered set from the
// surviving old generation (step 5).
func (gc *GC) continueFullSweep() {
	budget := gc.sweepBatch
	for budget > 0 && gc.sweepOldCursor != nil {
		o := gc.sweepOldCursor
		gc.sweepOldCursor = o.Next
		budget--
		if o.Marked {
			o.Marked = false
		} else {
			gc.unlinkOld(o)
		}
	}
	for budget > 0 && gc.sweepEnvCursor != nil {
		e := gc.sweepEnvCursor
		gc.sweepEnvCursor = e.Next
		budget--
		if e.Marked {
			e.Marked = false
		} else {
			gc.unlinkOldEnv(e)
		}
	}
	if gc.sweepOldCursor == nil && gc.sweepEnvCursor == nil {
		gc.sweepingFull = false
		gc.rebuildRemembered()
		gc.fullNext = maxInt(gc.heapBytes()*gc.growthFactor, gc.minHeap*2)
	}
}

// unlinkOld removes o from the old list. Sweeping is incremental and
// walks the list via saved Next pointers, so removal here only has to
// splice o's neighbors; it does not touch gc.sweepOldCursor, which has
// already moved past o.
func (gc *GC) unlinkOld(o *Object) {
	gc.oldBytes -= o.Size
	if gc.oldObjects == o {
		gc.oldObjects = o.Next
		return
	}
	for p := gc.oldObjects; p != nil; p = p.Next {
		if p.Next == o {
			p.Next = o.Next
			return
		}
	}
}

func (gc *GC) unlinkOldEnv(e *Env) {
	gc.envBytes -= e.Size
	if gc.oldEnvs == e {
		gc.oldEnvs = e.Next
		return
	}
	for p := gc.oldEnvs; p != nil; p = p.Next {
		if p.Next == e {
			p.Next = e.Next
			return
		}
	}
}

// rebuildRemembered scans every surviving old object/env for references
// into young space (spec.md §4.6 full collection step 5).
func (gc *GC) rebuildRemembered() {
	gc.remembered = gc.remembered[:0]
	for o := gc.oldObjects; o != nil; o = o.Next {
		o.Remembered = gc.referencesAnyYoung(o)
		if o.Remembered {
			gc.remembered = append(gc.remembered, o)
		}
	}
	gc.rememberedEnv = gc.rememberedEnv[:0]
	for e := gc.oldEnvs; e != nil; e = e.Next {
		e.Remembered = gc.envReferencesYoung(e)
		if e.Remembered {
			gc.rememberedEnv = append(gc.rememberedEnv, e)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
