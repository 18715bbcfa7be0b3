package main

type ErrDefine string

func (err ErrDefine) Error() string {
	return f("define '%v' is not NAME=VALUE", string(err))
}

type ErrBreakpoint string

func (err ErrBreakpoint) Error() string {
	return f("breakpoint '%v' is not an address or label", string(err))
}

// ErrSuiteArch is a testcase suite written for another architecture.
type ErrSuiteArch struct {
	Suite string
	Arch  string
}

func (err *ErrSuiteArch) Error() string {
	return f("testcase suite is for '%v', not '%v'", err.Suite, err.Arch)
}
