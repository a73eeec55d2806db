// Package logger is a thin structured-logging facade shared by the engine's
// ambient packages (dispatch, backoffpolicy, registry). Nothing on the
// Commit hot path logs.
package logger

import "go.uber.org/zap"

// Inst is the package-level logger every ambient component writes through.
// It starts out as a production zap logger, exactly like the teacher's
// pkg/logger, and can be swapped out in tests via SetForTest.
var Inst *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Inst = l.Sugar()
}

// SetForTest overrides Inst for the duration of a test and returns a restore
// function. The teacher's logger has no such seam; this module needs one
// because dispatch's panic-recovery test (dispatch/pool_test.go) asserts on
// the emitted Warn line.
func SetForTest(l *zap.SugaredLogger) (restore func()) {
	prev := Inst
	Inst = l
	return func() { Inst = prev }
}
