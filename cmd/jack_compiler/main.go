package main

import (
	"bytes"
	"os"
	"strings"

	"github.com/teris-io/cli"

	"github.com/n2t-toolchain/hackc/pkg/cliio"
	"github.com/n2t-toolchain/hackc/pkg/jack"
	"github.com/n2t-toolchain/hackc/pkg/vm"
)

var Description = strings.ReplaceAll(`
The Jack Compiler compiles programs (composed of multiple classes/files) written in
the Jack language into VM modules that can be further elaborated. The Jack language
is a higher-level OOP language tailored for use with the Hack computer architecture.
`, "\n", " ")

var logger = cliio.NewLogger()

var JackCompiler = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The source (.jack) file(s) or directory to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	inputs, err := cliio.ResolveInputs(args, ".jack")
	if err != nil {
		logger.WithError(err).Error("unable to resolve inputs")
		return 1
	}

	// By the Jack spec every file holds exactly one class, and the class is mapped
	// 1:1 to a 'vm.Module' once lowered. We parse every translation unit up-front so
	// that calls between classes can be lowered regardless of input order.
	program := jack.Program{}
	for _, tu := range inputs {
		content, err := os.ReadFile(tu)
		if err != nil {
			logger.WithError(err).WithField("file", tu).Error("unable to read input")
			return 1
		}

		parser := jack.NewParser(bytes.NewReader(content))
		class, err := parser.Parse()
		if err != nil {
			logger.WithError(err).WithField("file", tu).Error("unable to complete 'parsing' pass")
			return 1
		}

		moduleName := cliio.ModuleName(tu)
		if class.Name != moduleName {
			err := &jack.CompileError{
				ClassName: class.Name,
				Reason:    "class name '" + class.Name + "' does not match file name '" + moduleName + "'",
			}
			logger.WithError(err).WithField("file", tu).Error("unable to complete 'parsing' pass")
			return 1
		}

		program[moduleName] = class
		logger.WithField("file", tu).Info("parsed")
	}

	lowerer := jack.NewLowerer(program)
	vmProgram, err := lowerer.Lower()
	if err != nil {
		logger.WithError(err).Error("unable to complete 'lowering' pass")
		return 1
	}

	codegen := vm.NewCodeGenerator(vmProgram)
	compiled, err := codegen.Generate()
	if err != nil {
		logger.WithError(err).Error("unable to complete 'codegen' pass")
		return 1
	}

	for _, tu := range inputs {
		moduleName := cliio.ModuleName(tu)
		module, ok := compiled[moduleName]
		if !ok {
			logger.WithField("file", tu).Error("no compiled module found for class")
			return 1
		}

		outPath := cliio.DeriveOutputPath(tu, ".vm")
		if err := cliio.WriteLinesAtomic(outPath, module); err != nil {
			logger.WithError(err).WithField("file", outPath).Error("unable to write output")
			return 1
		}
		logger.WithField("file", tu).WithField("output", outPath).Info("compiled")
	}

	return 0
}

func main() { os.Exit(JackCompiler.Run(os.Args, os.Stdout)) }
