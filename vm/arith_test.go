package vm

import (
	"fmt"
	"math"
	"testing"
)

var arithOps = []struct {
	name string
	op   uint8
}{
	{"add", arithAdd},
	{"sub", arithSub},
	{"mul", arithMul},
	{"mod", arithMod},
}

// TestIntegerArithMatchesFloat checks the integer fast path against the
// generic float path over the edges of the integer range. The fast path
// must agree wherever it answers and may only decline when the float result
// is not a direct integer.
func TestIntegerArithMatchesFloat(t *testing.T) {
	operands := []int32{
		IntegerMin, IntegerMin + 1, -5, -4, -2, -1, 0, 1, 2, 4, 5, IntegerMax - 1, IntegerMax,
	}
	for _, tt := range arithOps {
		t.Run(tt.name, func(t *testing.T) {
			for _, a := range operands {
				for _, b := range operands {
					want := floatArith(tt.op, float64(a), float64(b))
					_, representable := floatToInteger(want)

					v, ok := integerArith(tt.op, a, b)
					if !ok {
						if representable {
							t.Errorf("%d %s %d: fast path declined %v", a, tt.name, b, want)
						}
						continue
					}
					if !v.IsInteger() {
						t.Errorf("%d %s %d: fast path returned %v", a, tt.name, b, v)
						continue
					}
					if got := float64(v.Integer()); got != want || math.Signbit(got) != math.Signbit(want) {
						t.Errorf("%d %s %d = %v, float path %v", a, tt.name, b, got, want)
					}
				}
			}
		})
	}
}

func TestIntegerArithDeclines(t *testing.T) {
	tests := []struct {
		a, b int32
		op   uint8
		want float64
	}{
		{0, -5, arithMul, math.Copysign(0, -1)},
		{-5, 0, arithMul, math.Copysign(0, -1)},
		{-4, 2, arithMod, math.Copysign(0, -1)},
		{IntegerMin, -1, arithMod, math.Copysign(0, -1)},
		{5, 0, arithMod, math.NaN()},
		{IntegerMax, 1, arithAdd, float64(IntegerMax) + 1},
		{IntegerMin, 1, arithSub, float64(IntegerMin) - 1},
		{IntegerMin, -1, arithMul, -float64(IntegerMin)},
	}
	vm := newTestVM(t)
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d op%d %d", tt.a, tt.op, tt.b), func(t *testing.T) {
			if v, ok := integerArith(tt.op, tt.a, tt.b); ok {
				t.Fatalf("fast path answered %v", v)
			}
			r := vm.arithmetic(tt.op, IntegerValue(tt.a), IntegerValue(tt.b))
			defer vm.FreeValue(r)
			if !r.IsFloat() {
				t.Fatalf("result %v is not a float", r)
			}
			got := vm.Number(r)
			if math.IsNaN(tt.want) {
				if !math.IsNaN(got) {
					t.Errorf("result = %v, want NaN", got)
				}
				return
			}
			if got != tt.want || math.Signbit(got) != math.Signbit(tt.want) {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}
}
