package vm

// ---------------------------------------------------------------------------
// Stack verification
// ---------------------------------------------------------------------------
//
// The interpreter pops operands without bounds checks, so every unit is
// walked once at link time. The walk follows each path through the code,
// tracking the number of operands above the context records and the shape
// of the records themselves, the same way the dispatch loop and the
// context functions move them.

// stackRecord is the static shape of an open context record.
type stackRecord struct {
	typ contextType
	end int
}

type stackState struct {
	recs  []stackRecord
	depth int // operands above the records
}

func (s stackState) slots() int {
	n := s.depth
	for _, r := range s.recs {
		n += contextSlots[r.typ]
	}
	return n
}

func (s stackState) top() (stackRecord, bool) {
	if len(s.recs) == 0 {
		return stackRecord{}, false
	}
	return s.recs[len(s.recs)-1], true
}

func (s stackState) withRecord(r stackRecord) stackState {
	recs := make([]stackRecord, len(s.recs)+1)
	copy(recs, s.recs)
	recs[len(s.recs)] = r
	return stackState{recs: recs, depth: s.depth}
}

func (s stackState) dropRecord() stackState {
	n := len(s.recs) - 1
	return stackState{recs: s.recs[:n:n], depth: s.depth}
}

// A try record turns into a catch record when its handler runs; paths
// from the try block and from the handler meet at the same code.
func recordClass(t contextType) contextType {
	if t == ctxCatch {
		return ctxTry
	}
	return t
}

func sameRecords(a, b []stackRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if recordClass(a[i].typ) != recordClass(b[i].typ) {
			return false
		}
	}
	return true
}

type stackEdge struct {
	pos   int
	state stackState
}

type stackChecker struct {
	code   []byte
	wide   bool
	starts []bool // instruction boundaries, including the end of the code
	states []*stackState
	work   []int
	need   int
}

// checkStack walks every reachable instruction of img and returns the
// number of stack slots above the registers the code needs. starts marks
// the instruction boundaries found by the linear decode.
//
// Where paths meet, the context records must agree; the operand depth
// kept is the smallest one seen.
func checkStack(img *UnitImage, starts []bool) (int, error) {
	c := &stackChecker{
		code:   img.Code,
		wide:   img.Flags&UnitUint16Arguments != 0,
		starts: starts,
		states: make([]*stackState, len(img.Code)+1),
	}
	if err := c.enter(stackEdge{pos: 0}); err != nil {
		return 0, err
	}
	for len(c.work) > 0 {
		pos := c.work[len(c.work)-1]
		c.work = c.work[:len(c.work)-1]
		if pos == len(c.code) {
			continue
		}
		ins, err := decodeInstruction(c.code, pos, c.wide)
		if err != nil {
			return 0, err
		}
		edges, err := c.step(&ins, *c.states[pos])
		if err != nil {
			return 0, err
		}
		for _, e := range edges {
			if err := c.enter(e); err != nil {
				return 0, err
			}
		}
	}
	return c.need, nil
}

func (c *stackChecker) enter(e stackEdge) error {
	if e.pos < 0 || e.pos >= len(c.starts) || !c.starts[e.pos] {
		return invalidUnit("control reaches %d, which is not an instruction", e.pos)
	}
	if n := e.state.slots(); n > c.need {
		c.need = n
	}
	old := c.states[e.pos]
	if old == nil {
		s := e.state
		c.states[e.pos] = &s
		c.work = append(c.work, e.pos)
		return nil
	}
	if !sameRecords(old.recs, e.state.recs) {
		return invalidUnit("paths meet at %d with different context records", e.pos)
	}
	if e.state.depth < old.depth {
		old.depth = e.state.depth
		c.work = append(c.work, e.pos)
	}
	return nil
}

// instructionAt decodes the instruction a context record points at.
func (c *stackChecker) instructionAt(pos, from int) (instruction, error) {
	if pos < 0 || pos >= len(c.code) || !c.starts[pos] {
		return instruction{}, invalidUnit("context opened at %d ends at %d, which is not an instruction", from, pos)
	}
	return decodeInstruction(c.code, pos, c.wide)
}

// handlers returns the entries of the catch and finally blocks of a try
// record ending at end. outer is the state outside the record. A catch
// block starts with the exception as its only operand.
func (c *stackChecker) handlers(end, from int, outer stackState) ([]stackEdge, error) {
	ins, err := c.instructionAt(end, from)
	if err != nil {
		return nil, err
	}
	var edges []stackEdge
	found := false
	if ins.ext && ins.info.group == groupCatch {
		found = true
		entry := outer.withRecord(stackRecord{ctxCatch, ins.target()})
		entry.depth = 1
		edges = append(edges, stackEdge{ins.next, entry})
		if ins, err = c.instructionAt(ins.target(), from); err != nil {
			return nil, err
		}
	}
	if ins.ext && ins.info.group == groupFinally {
		found = true
		entry := outer.withRecord(stackRecord{ctxFinallyJump, ins.target()})
		entry.depth = 0
		edges = append(edges, stackEdge{ins.next, entry})
	}
	if !found {
		return nil, invalidUnit("try at %d has neither catch nor finally", from)
	}
	for _, e := range edges {
		if e.pos >= len(c.code) {
			return nil, invalidUnit("handler of the try at %d is empty", from)
		}
	}
	return edges, nil
}

// exitRecords returns the records still open after a jump from s to
// target leaves the enclosing constructs.
func exitRecords(s stackState, target int) stackState {
	for {
		r, ok := s.top()
		if !ok || target < r.end {
			return s
		}
		if target == r.end && recordClass(r.typ) == ctxTry {
			return s
		}
		s = s.dropRecord()
	}
}

// step applies the stack effect of ins to s and returns the successor
// states.
func (c *stackChecker) step(ins *instruction, s stackState) ([]stackEdge, error) {
	info := &ins.info
	pop := func(n int) error {
		if s.depth < n {
			return invalidUnit("%s at %d needs %d operands, found %d", info.Name, ins.pos, n, s.depth)
		}
		s.depth -= n
		return nil
	}
	needs := func(n int) error {
		if err := pop(n); err != nil {
			return err
		}
		s.depth += n
		return nil
	}
	innermost := func(types ...contextType) (stackRecord, error) {
		r, ok := s.top()
		if ok {
			for _, t := range types {
				if recordClass(r.typ) == t {
					return r, nil
				}
			}
		}
		return r, invalidUnit("%s at %d outside a matching context", info.Name, ins.pos)
	}

	switch info.Get {
	case GetStack, GetStackLiteral:
		if err := pop(1); err != nil {
			return nil, err
		}
	case GetStackStack:
		if err := pop(2); err != nil {
			return nil, err
		}
	}

	target := ins.target()
	var edges []stackEdge
	switch info.group {
	case groupPushTwoLiterals, groupPushThisLiteral:
		s.depth += 2

	case groupArrayAppend:
		if err := needs(ins.byteOp + 1); err != nil {
			return nil, err
		}
		s.depth -= ins.byteOp

	case groupSetProperty, groupSetComputedProperty, groupSetAccessor:
		if err := needs(1); err != nil {
			return nil, err
		}

	case groupPushIdentReference, groupSuperPropReference, groupResolveBase:
		s.depth += 3

	case groupPushPropReference:
		if info.arg == 0 {
			if err := pop(1); err != nil {
				return nil, err
			}
		}
		if err := needs(1); err != nil {
			return nil, err
		}
		s.depth += 2

	case groupAssignPropLiteral:
		if err := pop(1); err != nil {
			return nil, err
		}

	case groupJump:
		return []stackEdge{{target, s}}, nil

	case groupBranchIfTrue, groupBranchIfFalse:
		return []stackEdge{{target, s}, {ins.next, s}}, nil

	case groupBranchIfLogicalTrue, groupBranchIfLogicalFalse:
		if err := needs(1); err != nil {
			return nil, err
		}
		taken := s
		s.depth--
		return []stackEdge{{target, taken}, {ins.next, s}}, nil

	case groupBranchIfStrictEqual:
		if err := needs(1); err != nil {
			return nil, err
		}
		taken := s
		taken.depth--
		return []stackEdge{{target, taken}, {ins.next, s}}, nil

	case groupJumpExitContext:
		return []stackEdge{{target, exitRecords(s, target)}}, nil

	case groupCall, groupNew:
		if err := pop(ins.byteOp + 1); err != nil {
			return nil, err
		}
	case groupCallProp:
		if err := pop(ins.byteOp + 3); err != nil {
			return nil, err
		}
	case groupSuperCall:
		if err := pop(ins.byteOp); err != nil {
			return nil, err
		}

	case groupReturn, groupReturnBlock, groupThrow:
		return nil, nil

	case groupContextEnd:
		r, err := innermost(ctxTry, ctxFinallyJump, ctxWith, ctxForIn, ctxSuperClass)
		if err != nil {
			return nil, err
		}
		s = s.dropRecord()
		if r.typ == ctxFinallyJump && r.end != ins.next {
			edges = append(edges, stackEdge{r.end, s})
		}

	case groupTryCreate:
		handlers, err := c.handlers(target, ins.pos, s)
		if err != nil {
			return nil, err
		}
		edges = append(edges, handlers...)
		s = s.withRecord(stackRecord{ctxTry, target})

	case groupCatch:
		return []stackEdge{{target, s}}, nil

	case groupFinally:
		if _, err := innermost(ctxTry); err != nil {
			return nil, err
		}
		s = s.dropRecord().withRecord(stackRecord{ctxFinallyJump, target})

	case groupWithCreate:
		s = s.withRecord(stackRecord{ctxWith, target})

	case groupSuperClassCreate:
		s = s.withRecord(stackRecord{ctxSuperClass, target})

	case groupForInCreate:
		return []stackEdge{{target, s}, {ins.next, s.withRecord(stackRecord{ctxForIn, target})}}, nil

	case groupForInGetNext:
		if _, err := innermost(ctxForIn); err != nil {
			return nil, err
		}

	case groupForInHasNext:
		if _, err := innermost(ctxForIn); err != nil {
			return nil, err
		}
		return []stackEdge{{target, s}, {ins.next, s.dropRecord()}}, nil

	case groupClassContextEnd:
		if err := pop(1); err != nil {
			return nil, err
		}
		if ins.byteOp != 0 {
			if _, err := innermost(ctxSuperClass); err != nil {
				return nil, err
			}
			s = s.dropRecord()
		}

	case groupInitializeClass:
		s.depth += 2

	case groupSetClassMethod:
		if err := needs(2); err != nil {
			return nil, err
		}
	}

	if info.Put&PutReference != 0 {
		if err := pop(2); err != nil {
			return nil, err
		}
	}
	if info.Put&PutStack != 0 {
		s.depth++
	}
	return append(edges, stackEdge{ins.next, s}), nil
}
