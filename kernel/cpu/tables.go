package cpu

// LoadGDT loads the global descriptor table register.
func LoadGDT(base uint32, limit uint16) {
	stateLock.Acquire()
	state.gdtBase, state.gdtLimit = base, limit
	stateLock.Release()
}

// GDTR returns the contents of the global descriptor table register.
func GDTR() (base uint32, limit uint16) {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.gdtBase, state.gdtLimit
}

// LoadIDT loads the interrupt descriptor table register.
func LoadIDT(base uint32, limit uint16) {
	stateLock.Acquire()
	state.idtBase, state.idtLimit = base, limit
	stateLock.Release()
}

// IDTR returns the contents of the interrupt descriptor table register.
func IDTR() (base uint32, limit uint16) {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.idtBase, state.idtLimit
}

// LoadTaskRegister loads the task register with a TSS selector.
func LoadTaskRegister(selector uint16) {
	stateLock.Acquire()
	state.tr = selector
	stateLock.Release()
}

// TaskRegister returns the selector held by the task register.
func TaskRegister() uint16 {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.tr
}

// LoadSegment loads a selector into a segment register.
func LoadSegment(reg SegmentRegister, selector uint16) {
	stateLock.Acquire()
	state.segments[reg] = selector
	stateLock.Release()
}

// Segment returns the selector held by a segment register.
func Segment(reg SegmentRegister) uint16 {
	stateLock.Acquire()
	defer stateLock.Release()
	return state.segments[reg]
}
