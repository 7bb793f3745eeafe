package capture

import (
	"strings"

	"github.com/colorfulnotion/exslice/exerrors"
)

type FilterMode int

const (
	NoFilter FilterMode = iota
	SyscallFilter
	ByteRangeFilter
	RangeFileFilter
)

func (m FilterMode) String() string {
	switch m {
	case SyscallFilter:
		return "syscall"
	case ByteRangeFilter:
		return "byterange"
	case RangeFileFilter:
		return "byterange-file"
	default:
		return "none"
	}
}

// TaintFilter narrows which inputs the instrumentation tool taints.
type TaintFilter struct {
	Mode  FilterMode
	Value string
}

// NewTaintFilter builds a filter from the three mutually exclusive inputs.
// Supplying more than one is a configuration conflict.
func NewTaintFilter(syscall, byteRange, rangeFile string) (TaintFilter, error) {
	var set []TaintFilter
	if syscall != "" {
		set = append(set, TaintFilter{Mode: SyscallFilter, Value: syscall})
	}
	if byteRange != "" {
		set = append(set, TaintFilter{Mode: ByteRangeFilter, Value: byteRange})
	}
	if rangeFile != "" {
		set = append(set, TaintFilter{Mode: RangeFileFilter, Value: rangeFile})
	}
	switch len(set) {
	case 0:
		return TaintFilter{}, nil
	case 1:
	default:
		modes := make([]string, len(set))
		for i, f := range set {
			modes[i] = f.Mode.String()
		}
		return TaintFilter{}, exerrors.ConfigConflict("only one taint filter may be given, got %s", strings.Join(modes, ", "))
	}

	f := set[0]
	if f.Mode == ByteRangeFilter && len(strings.Split(f.Value, ",")) != 4 {
		return TaintFilter{}, exerrors.ConfigConflict("taint byte range %q is not RECORD_PID,SYSCALL_INDEX,START,END", f.Value)
	}
	return f, nil
}

// Args are the instrumentation tool flags selecting the filter.
func (f TaintFilter) Args() []string {
	switch f.Mode {
	case SyscallFilter:
		return []string{"-i", "-s", f.Value}
	case ByteRangeFilter:
		return []string{"-i", "-b", f.Value}
	case RangeFileFilter:
		return []string{"-i", "-rf", f.Value}
	}
	return nil
}
