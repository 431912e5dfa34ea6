package vm

import (
	"encoding/binary"
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// VM: the Passerine virtual machine
// ---------------------------------------------------------------------------

// DefaultMaxFrames bounds the frame stack of each fiber.
const DefaultMaxFrames = 4096

// VM executes compiled lambdas. It is single-threaded; fibers are
// cooperative and scheduled by the call/yield graph alone.
type VM struct {
	// Out receives the output of the println primitive.
	Out io.Writer
	// MaxFrames bounds each fiber's frame stack.
	MaxFrames int
	// Fuel, when positive, bounds the number of executed opcodes; when
	// it runs out the VM halts with a TimeoutError.
	Fuel int64

	primitives map[string]Primitive

	fiber  *Fiber
	result Value
	spent  int64
}

// New creates a VM with the core primitive set registered and output
// directed at stdout.
func New() *VM {
	vm := &VM{
		Out:        os.Stdout,
		MaxFrames:  DefaultMaxFrames,
		primitives: make(map[string]Primitive),
	}
	vm.registerCorePrimitives()
	return vm
}

// Register installs a primitive under the given name, replacing any
// existing registration.
func (vm *VM) Register(name string, p Primitive) {
	vm.primitives[name] = p
}

// Run executes a top-level lambda to completion and returns its result.
// The lambda must have an empty capture descriptor.
func (vm *VM) Run(l *Lambda) (Value, error) {
	if len(l.Captured) != 0 {
		return nil, internalErrorf("top-level lambda captures %d cells", len(l.Captured))
	}
	root := NewFiber(&Closure{Lambda: l})
	root.Status = FiberRunning
	vm.fiber = root
	vm.result = nil
	vm.spent = 0

	if err := vm.enterClosure(root, root.closure, Unit{}); err != nil {
		return nil, err
	}
	return vm.loop()
}

// ---------------------------------------------------------------------------
// Frame and fiber transitions
// ---------------------------------------------------------------------------

// enterClosure pushes an activation of c onto fib's frame stack with the
// argument in slot 0.
func (vm *VM) enterClosure(fib *Fiber, c *Closure, arg Value) *RuntimeError {
	if len(fib.frames) >= vm.MaxFrames {
		return internalErrorf("frame stack overflow (%d frames)", len(fib.frames))
	}
	fib.frames = append(fib.frames, Frame{
		Closure: c,
		IP:      0,
		Base:    len(fib.stack),
		Slots:   1,
	})
	fib.push(arg)
	return nil
}

// callValue begins a call: closures push a frame, fibers are resumed,
// and label constructors wrap their argument. Anything else is a
// TypeError.
func (vm *VM) callValue(callee, arg Value) *RuntimeError {
	switch c := callee.(type) {
	case *Closure:
		return vm.enterClosure(vm.fiber, c, arg)
	case *Fiber:
		return vm.callFiber(c, arg)
	case *Label:
		if _, isUnit := c.Inner.(Unit); isUnit {
			vm.fiber.push(&Label{Name: c.Name, Inner: arg})
			return nil
		}
		return typeErrorf("label %s is already applied", c.Name)
	default:
		return typeErrorf("%s is not callable", callee.Kind())
	}
}

// callFiber sends arg into f and transfers control to it. A fresh fiber
// is started; a suspended one resumes just after its last Yield.
func (vm *VM) callFiber(f *Fiber, arg Value) *RuntimeError {
	switch f.Status {
	case FiberFresh:
		f.Mailbox = arg
		f.caller = vm.fiber
		f.Status = FiberRunning
		vm.fiber = f
		return vm.enterClosure(f, f.closure, arg)
	case FiberSuspended:
		f.Mailbox = arg
		f.caller = vm.fiber
		f.Status = FiberRunning
		vm.fiber = f
		// The sent value becomes the result of the Yield expression.
		f.push(arg)
		return nil
	case FiberRunning:
		return typeErrorf("fiber is already running")
	default:
		return typeErrorf("fiber is %s and cannot be called again", f.Status)
	}
}

// yield suspends the current fiber, surfacing v to its caller.
func (vm *VM) yield(v Value) *RuntimeError {
	fib := vm.fiber
	caller := fib.caller
	if caller == nil {
		return typeErrorf("yield outside of a fiber")
	}
	fib.Status = FiberSuspended
	fib.Mailbox = v
	fib.caller = nil
	vm.fiber = caller
	caller.push(v)
	return nil
}

// finishFiber completes the current fiber with result, surfacing it to
// the caller according to the fiber's entry mode. When the root fiber
// finishes, the VM records the final result and clears the current
// fiber to stop the loop.
func (vm *VM) finishFiber(result Value) {
	fib := vm.fiber
	fib.Status = FiberFinished
	fib.Mailbox = result
	fib.reclaim()
	caller := fib.caller
	fib.caller = nil

	if caller == nil {
		vm.result = result
		vm.fiber = nil
		return
	}
	vm.fiber = caller
	switch fib.entry {
	case entryTry:
		caller.push(&Label{Name: "Result.Ok", Inner: result})
	default:
		caller.push(result)
	}
}

// raise propagates err from the current fiber outward. Each fiber it
// passes through unwinds and becomes errored; a Try boundary converts a
// catchable error into Result.Error, a match-arm boundary retries the
// next arm on MatchError. The returned error is non-nil only when the
// host must see it.
func (vm *VM) raise(err *RuntimeError) *RuntimeError {
	if err.Span == (Span{}) {
		if fib := vm.fiber; fib != nil {
			if fr := fib.frame(); fr != nil {
				err.Span = fr.Closure.Lambda.SpanAt(fr.IP)
			}
		}
	}
	for {
		fib := vm.fiber
		if fib == nil {
			return err
		}
		fib.Status = FiberErrored
		fib.err = err
		fib.Mailbox = err.Value()
		fib.reclaim()
		caller := fib.caller
		fib.caller = nil

		if caller == nil {
			vm.fiber = nil
			return err
		}
		vm.fiber = caller

		if !err.Catchable() {
			continue
		}
		switch fib.entry {
		case entryTry:
			caller.push(&Label{Name: "Result.Error", Inner: err.Value()})
			return nil
		case entryArm:
			if err.ErrKind != ErrMatch {
				// Non-match errors abort the whole match.
				continue
			}
			ms := fib.match
			if ms.next >= len(ms.arms) {
				err = matchErrorf("no arm matched %s", Repr(ms.scrut))
				continue
			}
			if herr := vm.startArm(ms); herr != nil {
				err = herr
				continue
			}
			return nil
		default:
			continue
		}
	}
}

// startArm launches the next arm of a match dispatch in a fresh fiber.
func (vm *VM) startArm(ms *matchState) *RuntimeError {
	arm := ms.arms[ms.next]
	ms.next++
	af := NewFiber(arm)
	af.entry = entryArm
	af.match = ms
	return vm.callFiber(af, ms.scrut)
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// loop is the opcode dispatch loop. It runs until the root fiber
// finishes or an uncaught error reaches the host.
func (vm *VM) loop() (Value, error) {
	for {
		fib := vm.fiber
		if fib == nil {
			return vm.result, nil
		}
		fr := fib.frame()
		if fr == nil {
			if err := vm.raise(internalErrorf("fiber running with no frames")); err != nil {
				return nil, err
			}
			continue
		}
		code := fr.Closure.Lambda.Code
		if fr.IP >= len(code) {
			if err := vm.raise(internalErrorf("instruction pointer past end of code")); err != nil {
				return nil, err
			}
			continue
		}

		if vm.Fuel > 0 {
			vm.spent++
			if vm.spent > vm.Fuel {
				return nil, &RuntimeError{ErrKind: ErrTimeout, Message: "opcode budget exhausted"}
			}
		}

		op := Opcode(code[fr.IP])
		fr.IP++
		if rerr := vm.step(fib, fr, op); rerr != nil {
			if err := vm.raise(rerr); err != nil {
				return nil, err
			}
		}
	}
}

// operand16 reads a 16-bit little-endian operand and advances the
// instruction pointer.
func operand16(fr *Frame, code []byte) (int, *RuntimeError) {
	if fr.IP+2 > len(code) {
		return 0, internalErrorf("truncated operand at offset %d", fr.IP)
	}
	v := int(binary.LittleEndian.Uint16(code[fr.IP:]))
	fr.IP += 2
	return v, nil
}

// step executes a single opcode. It may switch the current fiber; the
// caller re-reads vm.fiber afterwards.
func (vm *VM) step(fib *Fiber, fr *Frame, op Opcode) *RuntimeError {
	code := fr.Closure.Lambda.Code
	l := fr.Closure.Lambda

	switch op {
	case OpCon:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		c, err := l.Constant(k)
		if err != nil {
			return err
		}
		fib.push(c)

	case OpNotInit:
		// Reserve slot n, inserting beneath any expression temporaries
		// so slot indexes stay base-relative. Re-execution (a binding
		// inside a loop body) is a no-op.
		n, err := operand16(fr, code)
		if err != nil {
			return err
		}
		if n < fr.Slots {
			break
		}
		if n != fr.Slots {
			return internalErrorf("slot reservation out of order: %d with %d reserved", n, fr.Slots)
		}
		at := fr.Base + fr.Slots
		if at > len(fib.stack) {
			return internalErrorf("slot reservation beyond stack top")
		}
		fib.stack = append(fib.stack, nil)
		copy(fib.stack[at+1:], fib.stack[at:])
		fib.stack[at] = Unit{}
		fr.Slots++

	case OpDel:
		if _, err := fib.pop(); err != nil {
			return err
		}

	case OpCopy:
		v, err := fib.peek()
		if err != nil {
			return err
		}
		fib.push(v)

	case OpSave:
		n, err := operand16(fr, code)
		if err != nil {
			return err
		}
		v, err := fib.pop()
		if err != nil {
			return err
		}
		if n >= fr.Slots {
			return internalErrorf("save to unreserved slot %d (slots=%d)", n, fr.Slots)
		}
		if b, ok := fib.stack[fr.Base+n].(*boxed); ok {
			b.cell.Value = v
		} else {
			fib.stack[fr.Base+n] = v
		}

	case OpLoad:
		n, err := operand16(fr, code)
		if err != nil {
			return err
		}
		if n >= fr.Slots {
			return internalErrorf("load from unreserved slot %d (slots=%d)", n, fr.Slots)
		}
		v := fib.stack[fr.Base+n]
		if b, ok := v.(*boxed); ok {
			v = b.cell.Value
		}
		fib.push(v)

	case OpHeap:
		n, err := operand16(fr, code)
		if err != nil {
			return err
		}
		if n >= fr.Slots {
			return internalErrorf("heap lift of unreserved slot %d (slots=%d)", n, fr.Slots)
		}
		slot := fr.Base + n
		if _, already := fib.stack[slot].(*boxed); !already {
			fib.stack[slot] = &boxed{cell: NewCell(fib.stack[slot])}
		}

	case OpSaveCap:
		c, err := operand16(fr, code)
		if err != nil {
			return err
		}
		if c >= len(fr.Closure.Cells) {
			return internalErrorf("capture index %d out of range (len=%d)", c, len(fr.Closure.Cells))
		}
		v, err := fib.pop()
		if err != nil {
			return err
		}
		fr.Closure.Cells[c].Value = v

	case OpLoadCap:
		c, err := operand16(fr, code)
		if err != nil {
			return err
		}
		if c >= len(fr.Closure.Cells) {
			return internalErrorf("capture index %d out of range (len=%d)", c, len(fr.Closure.Cells))
		}
		fib.push(fr.Closure.Cells[c].Value)

	case OpClosure:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		c, err := l.Constant(k)
		if err != nil {
			return err
		}
		inner, ok := c.(*Lambda)
		if !ok {
			return internalErrorf("closure constant %d is not a lambda", k)
		}
		cells := make([]*Cell, len(inner.Captured))
		for i, site := range inner.Captured {
			if site.FromLocal {
				if site.Index >= fr.Slots {
					return internalErrorf("capture site %d names unreserved slot %d", i, site.Index)
				}
				slot := fr.Base + site.Index
				b, isBoxed := fib.stack[slot].(*boxed)
				if !isBoxed {
					// The generator emits Heap before the first capturing
					// Closure; lift here as a safety net.
					b = &boxed{cell: NewCell(fib.stack[slot])}
					fib.stack[slot] = b
				}
				cells[i] = b.cell
			} else {
				if site.Index >= len(fr.Closure.Cells) {
					return internalErrorf("capture site %d names missing cell %d", i, site.Index)
				}
				cells[i] = fr.Closure.Cells[site.Index]
			}
		}
		fib.push(&Closure{Lambda: inner, Cells: cells})

	case OpCall:
		arg, err := fib.pop()
		if err != nil {
			return err
		}
		callee, err := fib.pop()
		if err != nil {
			return err
		}
		return vm.callValue(callee, arg)

	case OpReturn:
		result, err := fib.pop()
		if err != nil {
			return err
		}
		fib.stack = fib.stack[:fr.Base]
		fib.frames = fib.frames[:len(fib.frames)-1]
		if len(fib.frames) == 0 {
			vm.finishFiber(result)
		} else {
			fib.push(result)
		}

	case OpTuple, OpList:
		n, err := operand16(fr, code)
		if err != nil {
			return err
		}
		items, err := vm.popN(fib, n)
		if err != nil {
			return err
		}
		if op == OpTuple {
			fib.push(Tuple(items))
		} else {
			fib.push(List(items))
		}

	case OpRecord:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		c, err := l.Constant(k)
		if err != nil {
			return err
		}
		fields, ok := c.(List)
		if !ok {
			return internalErrorf("record constant %d is not a field list", k)
		}
		items, err := vm.popN(fib, len(fields))
		if err != nil {
			return err
		}
		rec := make(Record, len(fields))
		for i, f := range fields {
			name, ok := f.(String)
			if !ok {
				return internalErrorf("record field %d is not a string", i)
			}
			rec[string(name)] = items[i]
		}
		fib.push(rec)

	case OpLabel:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		name, err := vm.constString(l, k)
		if err != nil {
			return err
		}
		v, err := fib.pop()
		if err != nil {
			return err
		}
		fib.push(&Label{Name: name, Inner: v})

	case OpUnData:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		want, err := l.Constant(k)
		if err != nil {
			return err
		}
		v, err := fib.pop()
		if err != nil {
			return err
		}
		if !Equal(v, want) {
			return matchErrorf("expected %s, found %s", Repr(want), Repr(v))
		}

	case OpUnLabel:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		name, err := vm.constString(l, k)
		if err != nil {
			return err
		}
		v, err := fib.pop()
		if err != nil {
			return err
		}
		lab, ok := v.(*Label)
		if !ok || lab.Name != name {
			return matchErrorf("expected label %s, found %s", name, Repr(v))
		}
		fib.push(lab.Inner)

	case OpUnTuple:
		i, err := operand16(fr, code)
		if err != nil {
			return err
		}
		arity, err := operand16(fr, code)
		if err != nil {
			return err
		}
		v, err := fib.peek()
		if err != nil {
			return err
		}
		t, ok := v.(Tuple)
		if !ok || len(t) != arity {
			return matchErrorf("expected a tuple of %d, found %s", arity, Repr(v))
		}
		fib.push(t[i])

	case OpUnList:
		if fr.IP >= len(code) {
			return internalErrorf("truncated operand at offset %d", fr.IP)
		}
		kind := code[fr.IP]
		fr.IP++
		count, err := operand16(fr, code)
		if err != nil {
			return err
		}
		v, err := fib.peek()
		if err != nil {
			return err
		}
		lst, ok := v.(List)
		if !ok {
			return matchErrorf("expected a list, found %s", Repr(v))
		}
		switch kind {
		case UnListExact:
			if len(lst) != count {
				return matchErrorf("expected a list of %d, found %d elements", count, len(lst))
			}
		case UnListAtLeast:
			if len(lst) < count {
				return matchErrorf("expected a list of at least %d, found %d elements", count, len(lst))
			}
		default:
			return internalErrorf("unknown UnList kind %d", kind)
		}

	case OpUnElem, OpUnRest:
		i, err := operand16(fr, code)
		if err != nil {
			return err
		}
		v, err := fib.peek()
		if err != nil {
			return err
		}
		lst, ok := v.(List)
		if !ok || len(lst) < i {
			return matchErrorf("expected a list of at least %d, found %s", i, Repr(v))
		}
		if op == OpUnElem {
			if i >= len(lst) {
				return matchErrorf("list index %d out of range", i)
			}
			fib.push(lst[i])
		} else {
			rest := make(List, len(lst)-i)
			copy(rest, lst[i:])
			fib.push(rest)
		}

	case OpUnRecord:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		name, err := vm.constString(l, k)
		if err != nil {
			return err
		}
		v, err := fib.peek()
		if err != nil {
			return err
		}
		rec, ok := v.(Record)
		if !ok {
			return matchErrorf("expected a record, found %s", Repr(v))
		}
		field, ok := rec[name]
		if !ok {
			return matchErrorf("record has no field %s", name)
		}
		fib.push(field)

	case OpGuard:
		v, err := fib.pop()
		if err != nil {
			return err
		}
		if !Truthy(v) {
			return matchErrorf("guard failed")
		}

	case OpJump:
		d, err := operand16(fr, code)
		if err != nil {
			return err
		}
		fr.IP += d
		if fr.IP > len(code) {
			return internalErrorf("jump target %d past end of code", fr.IP)
		}

	case OpJumpBack:
		d, err := operand16(fr, code)
		if err != nil {
			return err
		}
		fr.IP -= d
		if fr.IP < 0 {
			return internalErrorf("jump target %d before start of code", fr.IP)
		}

	case OpMatch:
		n, err := operand16(fr, code)
		if err != nil {
			return err
		}
		if n == 0 {
			return internalErrorf("match with no arms")
		}
		armValues, err := vm.popN(fib, n)
		if err != nil {
			return err
		}
		scrut, err := fib.pop()
		if err != nil {
			return err
		}
		arms := make([]*Closure, n)
		for i, av := range armValues {
			c, ok := av.(*Closure)
			if !ok {
				return internalErrorf("match arm %d is not a closure", i)
			}
			arms[i] = c
		}
		return vm.startArm(&matchState{arms: arms, scrut: scrut})

	case OpFiberNew:
		v, err := fib.pop()
		if err != nil {
			return err
		}
		c, ok := v.(*Closure)
		if !ok {
			return typeErrorf("fiber requires a closure, found %s", v.Kind())
		}
		fib.push(NewFiber(c))

	case OpYield:
		v, err := fib.pop()
		if err != nil {
			return err
		}
		return vm.yield(v)

	case OpTry:
		v, err := fib.pop()
		if err != nil {
			return err
		}
		c, ok := v.(*Closure)
		if !ok {
			return typeErrorf("try requires a closure, found %s", v.Kind())
		}
		tf := NewFiber(c)
		tf.entry = entryTry
		return vm.callFiber(tf, Unit{})

	case OpError:
		v, err := fib.pop()
		if err != nil {
			return err
		}
		return &RuntimeError{ErrKind: ErrUser, Message: Display(v), Payload: v}

	case OpFFI:
		k, err := operand16(fr, code)
		if err != nil {
			return err
		}
		name, err := vm.constString(l, k)
		if err != nil {
			return err
		}
		prim, ok := vm.primitives[name]
		if !ok {
			return internalErrorf("unknown primitive %q", name)
		}
		arg, err := fib.pop()
		if err != nil {
			return err
		}
		result, err := prim(vm, arg)
		if err != nil {
			return err
		}
		fib.push(result)

	default:
		return internalErrorf("unknown opcode %02X", byte(op))
	}
	return nil
}

// popN pops n values, returning them in push order.
func (vm *VM) popN(fib *Fiber, n int) ([]Value, *RuntimeError) {
	if len(fib.stack) < n {
		return nil, internalErrorf("value stack underflow (need %d, have %d)", n, len(fib.stack))
	}
	items := make([]Value, n)
	copy(items, fib.stack[len(fib.stack)-n:])
	fib.stack = fib.stack[:len(fib.stack)-n]
	return items, nil
}

// constString fetches a string constant.
func (vm *VM) constString(l *Lambda, k int) (string, *RuntimeError) {
	c, err := l.Constant(k)
	if err != nil {
		return "", err
	}
	s, ok := c.(String)
	if !ok {
		return "", internalErrorf("constant %d is not a string", k)
	}
	return string(s), nil
}
