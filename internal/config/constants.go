package config

const SourceFileExt = ".lox"

// BytecodeExt is appended to a script path by the compile command
const BytecodeExt = ".loxc"

// ConfigFileName is looked up in the working directory and its parents
const ConfigFileName = "loxvm.yaml"

// TraceEnvVar forces execution tracing on when set to "1"
const TraceEnvVar = "LOXVM_TRACE"

// Process exit codes (sysexits.h)
const (
	ExitOK           = 0
	ExitUsage        = 64
	ExitCompileError = 65
	ExitRuntimeError = 70
	ExitIOError      = 74
)

// REPL commands
const (
	Prompt         = "> "
	GlobalsCommand = ":globals"
	QuitCommand    = ":quit"
)

// RPC names of the evaluation service
const (
	EvalServiceName     = "loxvm.Eval"
	InterpretMethodName = "Interpret"
)
