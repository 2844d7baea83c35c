package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"

	"github.com/n2t-toolchain/hackc/pkg/asm"
	"github.com/n2t-toolchain/hackc/pkg/cliio"
	"github.com/n2t-toolchain/hackc/pkg/hack"
	"github.com/n2t-toolchain/hackc/pkg/jack"
	"github.com/n2t-toolchain/hackc/pkg/vm"
)

var Description = strings.ReplaceAll(`
The Pipeline runs the Jack Compiler, VM Translator and Hack Assembler back to back in a
single process, turning a directory (or list) of .jack sources straight into a .hack
binary without requiring the intermediate .vm/.asm files to be invoked by hand.
`, "\n", " ")

var logger = cliio.NewLogger()

var Pipeline = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The source (.jack) file(s) or directory to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The final binary output (.hack)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("keep-intermediates", "Also writes out the generated .vm/.asm files").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	inputs, err := cliio.ResolveInputs(args, ".jack")
	if err != nil {
		logger.WithError(err).Error("unable to resolve inputs")
		return 1
	}

	_, keepIntermediates := options["keep-intermediates"]
	outDir, hasOutDir := os.LookupEnv("PIPELINE_OUT_DIR")

	// --- Stage 1: Jack -> Vm (IR) ---------------------------------------------------

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

	jackLowerer := jack.NewLowerer(program)
	vmProgram, err := jackLowerer.Lower()
	if err != nil {
		logger.WithError(err).Error("unable to complete Jack 'lowering' pass")
		return 1
	}

	baseDir := filepath.Dir(inputs[0])
	if hasOutDir {
		baseDir = outDir
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			logger.WithError(err).WithField("dir", baseDir).Error("unable to create PIPELINE_OUT_DIR")
			return 1
		}
	}

	if keepIntermediates {
		vmCodegen := vm.NewCodeGenerator(vmProgram)
		compiled, err := vmCodegen.Generate()
		if err != nil {
			logger.WithError(err).Error("unable to complete Jack 'codegen' pass")
			return 1
		}
		for _, tu := range inputs {
			moduleName := cliio.ModuleName(tu)
			lines, ok := compiled[moduleName]
			if !ok {
				continue
			}
			path := filepath.Join(baseDir, moduleName+".vm")
			if err := cliio.WriteLinesAtomic(path, lines); err != nil {
				logger.WithError(err).WithField("file", path).Error("unable to write intermediate .vm")
				return 1
			}
		}
	}

	// --- Stage 2: Vm -> Asm (IR) -----------------------------------------------------

	vmLowerer := vm.NewLowerer(vmProgram)
	asmProgram, err := vmLowerer.Lower()
	if err != nil {
		logger.WithError(err).Error("unable to complete Vm 'lowering' pass")
		return 1
	}

	outputStem := cliio.ModuleName(inputs[0])
	if len(inputs) > 1 {
		outputStem = filepath.Base(baseDir)
	}

	if keepIntermediates {
		asmCodegen := asm.NewCodeGenerator(asmProgram)
		compiled, err := asmCodegen.Generate()
		if err != nil {
			logger.WithError(err).Error("unable to complete Vm 'codegen' pass")
			return 1
		}
		path := filepath.Join(baseDir, outputStem+".asm")
		if err := cliio.WriteLinesAtomic(path, compiled); err != nil {
			logger.WithError(err).WithField("file", path).Error("unable to write intermediate .asm")
			return 1
		}
	}

	// --- Stage 3: Asm -> Hack ---------------------------------------------------------

	asmLowerer := asm.NewLowerer(asmProgram)
	hackProgram, table, err := asmLowerer.Lower()
	if err != nil {
		logger.WithError(err).Error("unable to complete Asm 'lowering' pass")
		return 1
	}

	hackCodegen := hack.NewCodeGenerator(hackProgram, table)
	compiled, err := hackCodegen.Generate()
	if err != nil {
		logger.WithError(err).Error("unable to complete Asm 'codegen' pass")
		return 1
	}

	outPath := options["output"]
	if outPath == "" {
		outPath = filepath.Join(baseDir, outputStem+".hack")
	}
	if err := cliio.WriteLinesAtomic(outPath, compiled); err != nil {
		logger.WithError(err).WithField("file", outPath).Error("unable to write output")
		return 1
	}
	logger.WithField("output", outPath).Info("compiled")

	return 0
}

func main() { os.Exit(Pipeline.Run(os.Args, os.Stdout)) }
