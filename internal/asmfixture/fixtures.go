package asmfixture

// Diamond assembles
//
//	  CMP  $0, X0
//	  BEQ  else
//	  MOVD $1, X1
//	  B    join
//	else:
//	  MOVD $2, X1
//	join:
//	  RET
func Diamond() ([]byte, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}
	p.CmpConst(X(0), 0).
		BranchIf(EQ, "else").
		MovConst(X(1), 1).
		Jump("join").
		Label("else").MovConst(X(1), 2).
		Label("join").Ret()
	return p.Assemble()
}

// CountDown assembles a pre-test loop
//
//	loop:
//	  CMP  $0, X0
//	  BEQ  done
//	  ADD  $1, X1
//	  B    loop
//	done:
//	  RET
func CountDown() ([]byte, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}
	p.Label("loop").CmpConst(X(0), 0).
		BranchIf(EQ, "done").
		AddConst(X(1), 1).
		Jump("loop").
		Label("done").Ret()
	return p.Assemble()
}

// DoWhile assembles a post-test loop whose body and test are separate
// blocks
//
//	  MOVD $0, X1
//	body:
//	  ADD  $1, X1
//	  B    cond
//	cond:
//	  CMP  $10, X1
//	  BNE  body
//	  RET
func DoWhile() ([]byte, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}
	p.MovConst(X(1), 0).
		Label("body").AddConst(X(1), 1).
		Jump("cond").
		Label("cond").CmpConst(X(1), 10).
		BranchIf(NE, "body").
		Ret()
	return p.Assemble()
}

// Spin assembles an infinite loop
//
//	loop:
//	  ADD $1, X1
//	  B   loop
func Spin() ([]byte, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}
	p.Label("loop").AddConst(X(1), 1).Jump("loop")
	return p.Assemble()
}

// LoopWithIf assembles a pre-test loop whose body holds a one-sided
// conditional
//
//	loop:
//	  CMP  $0, X0
//	  BEQ  done
//	  CMP  $5, X1
//	  BNE  skip
//	  MOVD $0, X2
//	skip:
//	  ADD  $1, X1
//	  B    loop
//	done:
//	  RET
func LoopWithIf() ([]byte, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}
	p.Label("loop").CmpConst(X(0), 0).
		BranchIf(EQ, "done").
		CmpConst(X(1), 5).
		BranchIf(NE, "skip").
		MovConst(X(2), 0).
		Label("skip").AddConst(X(1), 1).
		Jump("loop").
		Label("done").Ret()
	return p.Assemble()
}

// Tangle assembles a loop with two entries, which no pattern can reduce
//
//	  CMP $0, X0
//	  BEQ a
//	b:
//	  ADD $2, X1
//	  B   a
//	a:
//	  ADD $1, X1
//	  B   b
func Tangle() ([]byte, error) {
	p, err := New()
	if err != nil {
		return nil, err
	}
	p.CmpConst(X(0), 0).
		BranchIf(EQ, "a").
		Label("b").AddConst(X(1), 2).
		Jump("a").
		Label("a").AddConst(X(1), 1).
		Jump("b")
	return p.Assemble()
}

// Canned returns every structurable fixture program by name.
func Canned() ([]Func, error) {
	builders := []struct {
		name  string
		build func() ([]byte, error)
	}{
		{"diamond", Diamond},
		{"count_down", CountDown},
		{"do_while", DoWhile},
		{"spin", Spin},
		{"loop_with_if", LoopWithIf},
	}
	out := make([]Func, 0, len(builders))
	for _, b := range builders {
		code, err := b.build()
		if err != nil {
			return nil, err
		}
		out = append(out, Func{Name: b.name, Code: code})
	}
	return out, nil
}
