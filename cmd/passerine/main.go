// Passerine CLI - compile and run Passerine programs.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/vrtbl/passerine"
	"github.com/vrtbl/passerine/cache"
	"github.com/vrtbl/passerine/compiler"
	"github.com/vrtbl/passerine/manifest"
	"github.com/vrtbl/passerine/snippet"
	"github.com/vrtbl/passerine/vm"
)

var log = commonlog.GetLogger("passerine")

func main() {
	verbose := flag.Bool("v", false, "Verbose logging")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	expr := flag.String("e", "", "Evaluate an expression and print its value")
	action := flag.String("action", "run", "Pipeline stage to run through: lex, parse, desugar, hoist, compile, run")
	dump := flag.Bool("dump", false, "Print the compiled bytecode instead of running")
	noCache := flag.Bool("no-cache", false, "Skip the bytecode cache")
	fuel := flag.Int64("fuel", 0, "Opcode budget (0 = unlimited)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: passerine [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Passerine program. Without a file, runs the manifest's entry\n")
		fmt.Fprintf(os.Stderr, "point from passerine.toml in the current directory.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  passerine main.pn            # Run a file\n")
		fmt.Fprintf(os.Stderr, "  passerine -i                 # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  passerine -e '3 + 2 * 5'     # Evaluate an expression\n")
		fmt.Fprintf(os.Stderr, "  passerine -dump main.pn      # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  passerine -action parse x.pn # Stop after parsing\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	m := manifest.LoadOrDefault(".")
	if *fuel == 0 {
		*fuel = m.VM.Fuel
	}

	switch {
	case *interactive:
		repl(m, *fuel)
	case *expr != "":
		runText(m, "<eval>", *expr, *action, *dump, true, *fuel)
	default:
		path := m.EntryPath()
		if flag.NArg() > 0 {
			path = flag.Arg(0)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		runText(m, path, string(data), *action, *dump, *noCache, *fuel)
	}
}

// runText drives one source through the requested stage.
func runText(m *manifest.Manifest, name, text, action string, dump, noCache bool, fuel int64) {
	if dump {
		lambda, err := passerine.Compile(name, text)
		if err != nil {
			fail(err)
		}
		fmt.Print(lambda.Disassemble())
		return
	}

	if action != snippet.ActionRun {
		s := &snippet.Snippet{Name: name, Action: action, Outcome: snippet.OutcomeSuccess, Text: text}
		result := snippet.Run(s)
		if result.Err != nil {
			fail(result.Err)
		}
		fmt.Println(result.Outcome)
		return
	}

	lambda := compileCached(m, name, text, noCache)
	machine := newMachine(m, fuel)
	value, err := machine.Run(lambda)
	if err != nil {
		fail(err)
	}
	fmt.Println(vm.Repr(value))
}

// compileCached consults the bytecode cache before compiling, and fills
// it afterwards.
func compileCached(m *manifest.Manifest, name, text string, noCache bool) *vm.Lambda {
	var store *cache.Store
	if !noCache && m.Cache.Enabled {
		if s, err := cache.Open(m.CachePath()); err == nil {
			store = s
			defer store.Close()
		}
	}

	key := cache.SourceKey(text)
	if store != nil {
		if lambda := store.Load(key); lambda != nil {
			return lambda
		}
	}

	lambda, err := passerine.Compile(name, text)
	if err != nil {
		fail(err)
	}
	if store != nil {
		if serr := store.Save(key, lambda); serr != nil {
			log.Warningf("%s", serr.Error())
		}
	}
	return lambda
}

func newMachine(m *manifest.Manifest, fuel int64) *vm.VM {
	machine := vm.New()
	if m.VM.MaxFrames > 0 {
		machine.MaxFrames = m.VM.MaxFrames
	}
	if fuel > 0 {
		machine.Fuel = fuel
	}
	return machine
}

// repl reads expressions line by line, evaluating each as its own
// program.
func repl(m *manifest.Manifest, fuel int64) {
	fmt.Println("Passerine REPL. Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(">> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		lambda, err := passerine.Compile("<repl>", line)
		if err != nil {
			fmt.Println(err)
			continue
		}
		value, rerr := newMachine(m, fuel).Run(lambda)
		if rerr != nil {
			fmt.Println(rerr)
			continue
		}
		fmt.Println(vm.Repr(value))
	}
}

func fail(err error) {
	if syn, ok := err.(*compiler.Syntax); ok {
		fmt.Fprintln(os.Stderr, syn.Error())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
