package main

import (
	"bytes"
	"os"
	"strings"

	"github.com/teris-io/cli"

	"github.com/n2t-toolchain/hackc/pkg/asm"
	"github.com/n2t-toolchain/hackc/pkg/cliio"
	"github.com/n2t-toolchain/hackc/pkg/vm"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode-like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var logger = cliio.NewLogger()

var VmTranslator = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The bytecode (.vm) file(s) or directory to be translated").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled assembly output (.asm)").
		WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	inputs, err := cliio.ResolveInputs(args, ".vm")
	if err != nil {
		logger.WithError(err).Error("unable to resolve inputs")
		return 1
	}

	outPath := options["output"]
	if outPath == "" {
		outPath = cliio.DeriveOutputPath(inputs[0], ".asm")
	}

	// 'Sys' bootstrap presence/placement is auto-detected by the lowerer, keyed on the
	// bare module name, so every module is parsed and stored without its extension.
	program := vm.Program{}
	for _, input := range inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			logger.WithError(err).WithField("file", input).Error("unable to read input")
			return 1
		}

		parser := vm.NewParser(bytes.NewReader(content))
		module, err := parser.Parse()
		if err != nil {
			logger.WithError(err).WithField("file", input).Error("unable to complete 'parsing' pass")
			return 1
		}

		program[cliio.ModuleName(input)] = module
		logger.WithField("file", input).Info("parsed")
	}

	lowerer := vm.NewLowerer(program)
	asmProgram, err := lowerer.Lower()
	if err != nil {
		logger.WithError(err).Error("unable to complete 'lowering' pass")
		return 1
	}

	codegen := asm.NewCodeGenerator(asmProgram)
	compiled, err := codegen.Generate()
	if err != nil {
		logger.WithError(err).Error("unable to complete 'codegen' pass")
		return 1
	}

	if err := cliio.WriteLinesAtomic(outPath, compiled); err != nil {
		logger.WithError(err).WithField("file", outPath).Error("unable to write output")
		return 1
	}
	logger.WithField("output", outPath).Info("translated")

	return 0
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
