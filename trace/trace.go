package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// OpKind identifies the request a trace line makes of the heap
type OpKind int

const (
	OpAlloc OpKind = iota
	OpRealloc
	OpFree
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "a"
	case OpRealloc:
		return "r"
	case OpFree:
		return "f"
	default:
		return "OpKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Op is a single request in a trace. Size is unused for OpFree.
type Op struct {
	Kind OpKind
	ID   int
	Size int
}

// Trace is a sequence of heap requests in the malloc-lab format. Requests refer to allocations
// by an ID in [0, IDCount).
type Trace struct {
	SuggestedHeapSize int
	IDCount           int
	Weight            int
	Ops               []Op
}

// Parse reads a trace: four header lines holding the suggested heap size, the number of ids,
// the number of operations and the weight, followed by one operation per line of the form
// "a id size", "r id size" or "f id". Blank lines are skipped.
func Parse(r io.Reader) (*Trace, error) {
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	nextLine := func() ([]string, error) {
		for scanner.Scan() {
			lineNumber++
			fields := strings.Fields(scanner.Text())
			if len(fields) > 0 {
				return fields, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read trace")
		}
		return nil, io.EOF
	}

	var header [4]int
	for i := range header {
		fields, err := nextLine()
		if err == io.EOF {
			return nil, errors.New("trace header is truncated")
		} else if err != nil {
			return nil, err
		}

		if len(fields) != 1 {
			return nil, errors.Newf("line %d: expected a single header value, found %d fields", lineNumber, len(fields))
		}
		header[i], err = parseInt(fields[0], lineNumber)
		if err != nil {
			return nil, err
		}
	}

	t := &Trace{
		SuggestedHeapSize: header[0],
		IDCount:           header[1],
		Weight:            header[3],
	}
	opCount := header[2]
	if t.IDCount < 0 || opCount < 0 {
		return nil, errors.Newf("trace header declares %d ids and %d operations", t.IDCount, opCount)
	}
	t.Ops = make([]Op, 0, opCount)

	for {
		fields, err := nextLine()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		op, err := parseOp(fields, lineNumber)
		if err != nil {
			return nil, err
		}

		if op.ID < 0 || op.ID >= t.IDCount {
			return nil, errors.Newf("line %d: id %d is outside the declared range [0, %d)", lineNumber, op.ID, t.IDCount)
		}

		t.Ops = append(t.Ops, op)
	}

	if len(t.Ops) != opCount {
		return nil, errors.Newf("trace header declares %d operations, but %d were read", opCount, len(t.Ops))
	}

	return t, nil
}

func parseOp(fields []string, lineNumber int) (Op, error) {
	var op Op
	var expectedFields int

	switch fields[0] {
	case "a":
		op.Kind = OpAlloc
		expectedFields = 3
	case "r":
		op.Kind = OpRealloc
		expectedFields = 3
	case "f":
		op.Kind = OpFree
		expectedFields = 2
	default:
		return op, errors.Newf("line %d: unknown operation %q", lineNumber, fields[0])
	}

	if len(fields) != expectedFields {
		return op, errors.Newf("line %d: operation %q takes %d fields, found %d", lineNumber, fields[0], expectedFields, len(fields))
	}

	var err error
	op.ID, err = parseInt(fields[1], lineNumber)
	if err != nil {
		return op, err
	}

	if expectedFields == 3 {
		op.Size, err = parseInt(fields[2], lineNumber)
		if err != nil {
			return op, err
		}
	}

	return op, nil
}

func parseInt(field string, lineNumber int) (int, error) {
	value, err := strconv.Atoi(field)
	if err != nil {
		return 0, errors.Wrapf(err, "line %d", lineNumber)
	}
	return value, nil
}
