package internal

// Program is the declarative description of one logical
// interaction with the server. A program is a tree of
// instructions that the engine interprets, it never performs
// I/O by itself. Instructions either finish the interaction,
// emit an intermediate value, ask for a fresh identifier, send
// a request and suspend until the typed response arrives, fail,
// or ask to be restarted from the beginning.
type Program interface {
	isProgram()
}

// Terminal instruction, the interaction finished and the value
// is delivered to the operation callback.
type Done struct {
	Value interface{}
}

// Emits an intermediate value and continues with the rest of
// the program. Emitted values feed the operation value sink, or
// a substituted sub-program when the program was reparented.
type Emit struct {
	Value interface{}
	Next  Program
}

// Asks the engine for a fresh identifier and continues with it.
type FreshID struct {
	Cont func(id UID) Program
}

// Sends a request and suspends. The engine allocates the
// correlation identifier, encodes Message through the codec and
// records Expected, Decode and Cont so the matching response can
// resume the program.
type Request struct {
	Command  byte
	Expected byte
	Message  interface{}

	// Decodes the expected response payload into its typed form.
	Decode func(c Codec, payload []byte) (interface{}, error)

	// Resumed with the decoded response.
	Cont func(decoded interface{}) Program
}

// Terminal failing instruction, the error is delivered to the
// operation callback.
type Fail struct {
	Err error
}

// Restarts interpretation of the whole program from its original
// first instruction. The engine makes no retry-count decision,
// bounded retry is expressed structurally by the program itself.
type Restart struct {
}

func (Done) isProgram()    {}
func (Emit) isProgram()    {}
func (FreshID) isProgram() {}
func (Request) isProgram() {}
func (Fail) isProgram()    {}
func (Restart) isProgram() {}

// Then sequences two programs: runs p and, once p reaches Done,
// continues with the program built from its final value. Failing
// and restarting instructions are left untouched.
func Then(p Program, next func(final interface{}) Program) Program {
	switch inst := p.(type) {
	case Done:
		return next(inst.Value)
	case Emit:
		return Emit{Value: inst.Value, Next: Then(inst.Next, next)}
	case FreshID:
		cont := inst.Cont
		return FreshID{Cont: func(id UID) Program {
			return Then(cont(id), next)
		}}
	case Request:
		cont := inst.Cont
		rewritten := inst
		rewritten.Cont = func(decoded interface{}) Program {
			return Then(cont(decoded), next)
		}
		return rewritten
	default:
		return p
	}
}

// Reparent substitutes a sub-program for every value emitted by
// p, feeding the emitted value into the substitution. All other
// instructions are preserved unchanged. This is how compound
// operations route one program's output into another.
func Reparent(p Program, sub func(value interface{}) Program) Program {
	switch inst := p.(type) {
	case Emit:
		rest := inst.Next
		return Then(sub(inst.Value), func(interface{}) Program {
			return Reparent(rest, sub)
		})
	case FreshID:
		cont := inst.Cont
		return FreshID{Cont: func(id UID) Program {
			return Reparent(cont(id), sub)
		}}
	case Request:
		cont := inst.Cont
		rewritten := inst
		rewritten.Cont = func(decoded interface{}) Program {
			return Reparent(cont(decoded), sub)
		}
		return rewritten
	default:
		return p
	}
}
