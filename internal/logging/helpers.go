package logging

import "time"

// Convenience helpers so call sites read logging.Executor(...) rather
// than logging.Get(logging.CategoryExecutor).Info(...).

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

func Server(format string, args ...interface{}) { Get(CategoryServer).Info(format, args...) }
func ServerDebug(format string, args ...interface{}) {
	Get(CategoryServer).Debug(format, args...)
}
func ServerError(format string, args ...interface{}) {
	Get(CategoryServer).Error(format, args...)
}

func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}
func SessionWarn(format string, args ...interface{}) {
	Get(CategorySession).Warn(format, args...)
}

func Executor(format string, args ...interface{}) { Get(CategoryExecutor).Info(format, args...) }
func ExecutorDebug(format string, args ...interface{}) {
	Get(CategoryExecutor).Debug(format, args...)
}
func ExecutorWarn(format string, args ...interface{}) {
	Get(CategoryExecutor).Warn(format, args...)
}
func ExecutorError(format string, args ...interface{}) {
	Get(CategoryExecutor).Error(format, args...)
}

func Planner(format string, args ...interface{}) { Get(CategoryPlanner).Info(format, args...) }
func PlannerDebug(format string, args ...interface{}) {
	Get(CategoryPlanner).Debug(format, args...)
}

func Prompt(format string, args ...interface{}) { Get(CategoryPrompt).Info(format, args...) }
func PromptDebug(format string, args ...interface{}) {
	Get(CategoryPrompt).Debug(format, args...)
}

func Provider(format string, args ...interface{}) { Get(CategoryProvider).Info(format, args...) }
func ProviderDebug(format string, args ...interface{}) {
	Get(CategoryProvider).Debug(format, args...)
}
func ProviderWarn(format string, args ...interface{}) {
	Get(CategoryProvider).Warn(format, args...)
}
func ProviderError(format string, args ...interface{}) {
	Get(CategoryProvider).Error(format, args...)
}

func Parser(format string, args ...interface{}) { Get(CategoryParser).Info(format, args...) }
func ParserDebug(format string, args ...interface{}) {
	Get(CategoryParser).Debug(format, args...)
}

func Workspace(format string, args ...interface{}) { Get(CategoryWorkspace).Info(format, args...) }
func WorkspaceDebug(format string, args ...interface{}) {
	Get(CategoryWorkspace).Debug(format, args...)
}

func Scanner(format string, args ...interface{}) { Get(CategoryScanner).Info(format, args...) }
func ScannerDebug(format string, args ...interface{}) {
	Get(CategoryScanner).Debug(format, args...)
}

func Stream(format string, args ...interface{}) { Get(CategoryStream).Info(format, args...) }
func StreamDebug(format string, args ...interface{}) {
	Get(CategoryStream).Debug(format, args...)
}
func StreamWarn(format string, args ...interface{}) {
	Get(CategoryStream).Warn(format, args...)
}

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

func Git(format string, args ...interface{}) { Get(CategoryGit).Info(format, args...) }
func GitDebug(format string, args ...interface{}) {
	Get(CategoryGit).Debug(format, args...)
}

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop ends timing and logs the elapsed duration.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %v", t.op, time.Since(t.start))
}
