package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// errUnsupported is the single diagnostic for every syntactic form
// outside the closed arithmetic grammar: identifiers, calls, attribute
// access, and anything else.
var errUnsupported = errors.New("Unsupported expression")

// number is an arithmetic value that stays integral until an operation
// forces it to float: true division always does, and the other
// operators do when either operand is already a float.
type number struct {
	isInt bool
	i     int64
	f     float64
}

func intNum(i int64) number     { return number{isInt: true, i: i} }
func floatNum(f float64) number { return number{f: f} }

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

// Value renders the number as the executor output value.
func (n number) Value() any {
	if n.isInt {
		return n.i
	}
	return n.f
}

// EvalMath evaluates an arithmetic expression over integer and float
// literals with the operators + - * / % // ** and unary minus. Any
// other syntactic form fails with "Unsupported expression".
func EvalMath(expression string) (any, error) {
	p := &exprParser{tokens: nil}
	if err := p.tokenize(expression); err != nil {
		return nil, err
	}
	n, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, errUnsupported
	}
	return n.Value(), nil
}

type exprParser struct {
	tokens []string
	pos    int
}

// tokenize splits the expression into number literals, operators, and
// parentheses. Two-character operators are matched greedily.
func (p *exprParser) tokenize(s string) error {
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(s[i:], "**") || strings.HasPrefix(s[i:], "//"):
			p.tokens = append(p.tokens, s[i:i+2])
			i += 2
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%' || c == '(' || c == ')':
			p.tokens = append(p.tokens, string(c))
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			seenExp := false
			for j < len(s) {
				d := s[j]
				if d >= '0' && d <= '9' || d == '.' {
					j++
					continue
				}
				if (d == 'e' || d == 'E') && !seenExp && j > i {
					// Exponent, optionally signed.
					seenExp = true
					j++
					if j < len(s) && (s[j] == '+' || s[j] == '-') {
						j++
					}
					continue
				}
				break
			}
			p.tokens = append(p.tokens, s[i:j])
			i = j
		default:
			return errUnsupported
		}
	}
	return nil
}

func (p *exprParser) eof() bool { return p.pos >= len(p.tokens) }

func (p *exprParser) peek() string {
	if p.eof() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) parseAddSub() (number, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return number{}, err
	}
	for {
		switch p.peek() {
		case "+":
			p.pos++
			right, err := p.parseMulDiv()
			if err != nil {
				return number{}, err
			}
			left = apply(left, right, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
		case "-":
			p.pos++
			right, err := p.parseMulDiv()
			if err != nil {
				return number{}, err
			}
			left = apply(left, right, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseMulDiv() (number, error) {
	left, err := p.parseUnary()
	if err != nil {
		return number{}, err
	}
	for {
		op := p.peek()
		switch op {
		case "*", "/", "//", "%":
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return number{}, err
			}
			left, err = applyDivisive(op, left, right)
			if err != nil {
				return number{}, err
			}
		default:
			return left, nil
		}
	}
}

// parseUnary handles unary minus. Exponentiation binds tighter than a
// unary minus on its left, so -2**2 is -(2**2).
func (p *exprParser) parseUnary() (number, error) {
	if p.peek() == "-" {
		p.pos++
		n, err := p.parseUnary()
		if err != nil {
			return number{}, err
		}
		if n.isInt {
			return intNum(-n.i), nil
		}
		return floatNum(-n.f), nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (number, error) {
	base, err := p.parseAtom()
	if err != nil {
		return number{}, err
	}
	if p.peek() != "**" {
		return base, nil
	}
	p.pos++
	// Right-associative; the exponent may itself carry a unary minus.
	exp, err := p.parseUnary()
	if err != nil {
		return number{}, err
	}
	return pow(base, exp)
}

func (p *exprParser) parseAtom() (number, error) {
	if p.peek() == "(" {
		p.pos++
		n, err := p.parseAddSub()
		if err != nil {
			return number{}, err
		}
		if p.next() != ")" {
			return number{}, errUnsupported
		}
		return n, nil
	}

	tok := p.next()
	if tok == "" {
		return number{}, errUnsupported
	}
	if !strings.ContainsAny(tok, ".eE") {
		i, err := strconv.ParseInt(tok, 10, 64)
		if err == nil {
			return intNum(i), nil
		}
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return number{}, errUnsupported
	}
	return floatNum(f), nil
}

// apply runs an operator that keeps integers integral.
func apply(a, b number, iop func(int64, int64) int64, fop func(float64, float64) float64) number {
	if a.isInt && b.isInt {
		return intNum(iop(a.i, b.i))
	}
	return floatNum(fop(a.float(), b.float()))
}

// applyDivisive runs * / // %. True division always produces a float;
// floor division and modulo follow floored-division semantics (the
// result sign follows the divisor).
func applyDivisive(op string, a, b number) (number, error) {
	switch op {
	case "*":
		return apply(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }), nil
	case "/":
		if b.float() == 0 {
			return number{}, errors.New("division by zero")
		}
		return floatNum(a.float() / b.float()), nil
	case "//":
		if b.float() == 0 {
			return number{}, errors.New("division by zero")
		}
		if a.isInt && b.isInt {
			q := a.i / b.i
			if (a.i%b.i != 0) && ((a.i < 0) != (b.i < 0)) {
				q--
			}
			return intNum(q), nil
		}
		return floatNum(math.Floor(a.float() / b.float())), nil
	case "%":
		if b.float() == 0 {
			return number{}, errors.New("division by zero")
		}
		if a.isInt && b.isInt {
			r := a.i % b.i
			if r != 0 && ((r < 0) != (b.i < 0)) {
				r += b.i
			}
			return intNum(r), nil
		}
		r := math.Mod(a.float(), b.float())
		if r != 0 && ((r < 0) != (b.float() < 0)) {
			r += b.float()
		}
		return floatNum(r), nil
	default:
		return number{}, errUnsupported
	}
}

// pow keeps integer bases with non-negative integer exponents integral.
func pow(base, exp number) (number, error) {
	if base.isInt && exp.isInt && exp.i >= 0 {
		result := int64(1)
		for range exp.i {
			result *= base.i
		}
		return intNum(result), nil
	}
	v := math.Pow(base.float(), exp.float())
	if math.IsNaN(v) {
		return number{}, fmt.Errorf("invalid power operation")
	}
	return floatNum(v), nil
}
