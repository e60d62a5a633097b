package framework

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Filter is a function that can determine whether to run a specific test or not.
type Filter func(TestID) bool

// RegexFilters selects tests the same way "go test -run" and "-skip" do: each pattern is split
// on "/" and each element is matched against the corresponding level of the test path.
type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

func (r RegexFilters) AsFilter(id TestID) bool {
	if r.MustMatch.IsDefined() && !r.MustMatch.anyMatch(id, true) {
		return false
	}
	return !r.MustNotMatch.anyMatch(id, false)
}

type RegexList struct {
	raw      []string
	patterns [][]*regexp.Regexp
}

func (r RegexList) String() string {
	var ss []string
	for _, p := range r.raw {
		ss = append(ss, `"`+p+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (r *RegexList) Set(value string) error {
	var elements []*regexp.Regexp
	for _, part := range strings.Split(value, "/") {
		rx, err := regexp.Compile(part)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		elements = append(elements, rx)
	}
	r.raw = append(r.raw, value)
	r.patterns = append(r.patterns, elements)
	return nil
}

// Type is called by the command line parser
func (r *RegexList) Type() string {
	return "regex"
}

func (r RegexList) IsDefined() bool {
	return len(r.patterns) != 0
}

// anyMatch reports whether some pattern matches the path level by level. If partial is true,
// a path shorter than the pattern matches as long as the levels it has do, so that the
// ancestors of a selected test still run.
func (r RegexList) anyMatch(id TestID, partial bool) bool {
	for _, elements := range r.patterns {
		if !partial && len(id.Path) < len(elements) {
			continue
		}
		ok := true
		for i, rx := range elements {
			if i >= len(id.Path) {
				break
			}
			if !rx.MatchString(id.Path[i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func PrintFilterDescription(out io.Writer, filters RegexFilters) {
	if filters.MustMatch.IsDefined() || filters.MustNotMatch.IsDefined() {
		fmt.Fprintln(out, "Some tests will be skipped based on the filter criteria for this test run:")
		if filters.MustMatch.IsDefined() {
			fmt.Fprintf(out, "  skip any not matching %s\n", filters.MustMatch)
		}
		if filters.MustNotMatch.IsDefined() {
			fmt.Fprintf(out, "  skip any matching %s\n", filters.MustNotMatch)
		}
		fmt.Fprintln(out)
	}
}
