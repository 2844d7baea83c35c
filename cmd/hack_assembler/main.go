package main

import (
	"bytes"
	"os"
	"strings"

	"github.com/teris-io/cli"

	"github.com/n2t-toolchain/hackc/pkg/asm"
	"github.com/n2t-toolchain/hackc/pkg/cliio"
	"github.com/n2t-toolchain/hackc/pkg/hack"
)

var Description = strings.ReplaceAll(`
The Hack Assembler takes assembly language code written in the Hack assembly language
and translates it into machine code that can be executed by the Hack computer. The process
involves parsing the assembly code, resolving symbols, and generating machine code.
`, "\n", " ")

var logger = cliio.NewLogger()

var HackAssembler = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The assembly (.asm) file(s) or directory to be assembled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled binary output (.hack)").
		WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	inputs, err := cliio.ResolveInputs(args, ".asm")
	if err != nil {
		logger.WithError(err).Error("unable to resolve inputs")
		return 1
	}

	outPath := options["output"]
	if outPath == "" {
		outPath = cliio.DeriveOutputPath(inputs[0], ".hack")
	}

	for _, input := range inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			logger.WithError(err).WithField("file", input).Error("unable to read input")
			return 1
		}

		parser := asm.NewParser(bytes.NewReader(content))
		asmProgram, err := parser.Parse()
		if err != nil {
			logger.WithError(err).WithField("file", input).Error("unable to complete 'parsing' pass")
			return 1
		}

		lowerer := asm.NewLowerer(asmProgram)
		hackProgram, table, err := lowerer.Lower()
		if err != nil {
			logger.WithError(err).WithField("file", input).Error("unable to complete 'lowering' pass")
			return 1
		}

		codegen := hack.NewCodeGenerator(hackProgram, table)
		compiled, err := codegen.Generate()
		if err != nil {
			logger.WithError(err).WithField("file", input).Error("unable to complete 'codegen' pass")
			return 1
		}

		dest := outPath
		if len(inputs) > 1 {
			dest = cliio.DeriveOutputPath(input, ".hack")
		}
		if err := cliio.WriteLinesAtomic(dest, compiled); err != nil {
			logger.WithError(err).WithField("file", dest).Error("unable to write output")
			return 1
		}
		logger.WithField("file", input).WithField("output", dest).Info("assembled")
	}

	return 0
}

func main() { os.Exit(HackAssembler.Run(os.Args, os.Stdout)) }
