package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/ianlancetaylor/demangle"

	"github.com/pattyshack/dwarflint/dwarf"
	"github.com/pattyshack/dwarflint/elf"
)

type session struct {
	elfFile *elf.File
	file    *dwarf.File
}

type command struct {
	name string
	run  func(*session, []string) error
}

var (
	commands = []command{
		{
			name: "sections",
			run:  listSections,
		},
		{
			name: "cus",
			run:  listCompileUnits,
		},
		{
			name: "abbrev",
			run:  listAbbreviations,
		},
		{
			name: "strings",
			run:  listStrings,
		},
		{
			name: "pubnames",
			run:  listPubnames,
		},
		{
			name: "sym",
			run:  lookupSymbol,
		},
		{
			name: "check",
			run:  runCheck,
		},
	}
)

func listSections(sess *session, args []string) error {
	for idx, section := range sess.elfFile.Sections {
		header := section.Header()
		fmt.Printf(
			"%d: %s\t%s\tsize = %d\n",
			idx,
			section.Name(),
			header.SectionType,
			header.Size)
	}
	return nil
}

func listCompileUnits(sess *session, args []string) error {
	if sess.file.Information == nil {
		fmt.Println("no usable .debug_info")
		return nil
	}

	for _, unit := range sess.file.Information.CompileUnits {
		fmt.Printf(
			"CU 0x%x: length = %d version = %d abbrev offset = 0x%x "+
				"address size = %d dies = %d\n",
			unit.Offset,
			unit.Length,
			unit.Version,
			unit.AbbrevOffset,
			unit.AddressSize,
			unit.DieAddrs.Len())
	}
	return nil
}

func listAbbreviations(sess *session, args []string) error {
	if sess.file.Abbreviations == nil {
		fmt.Println("no usable .debug_abbrev")
		return nil
	}

	for _, table := range sess.file.Abbreviations.Tables {
		fmt.Printf("table 0x%x:\n", table.Offset)
		for _, abbrev := range table.Abbreviations {
			fmt.Printf(
				"  Code: %d\tHasChildren: %v\tTag: %s\n",
				abbrev.Code,
				abbrev.HasChildren,
				abbrev.Tag)
			for _, spec := range abbrev.AttributeSpecs {
				fmt.Printf(
					"    Attribute: %s\tFormat: %s\n",
					spec.Attribute,
					spec.Format)
			}
		}
	}
	return nil
}

func listStrings(sess *session, args []string) error {
	entries, err := sess.file.Strings.StringEntries()
	if err != nil {
		return err
	}

	for idx, value := range entries {
		fmt.Printf("%d: %s\n", idx, value)
	}
	return nil
}

func listPubnames(sess *session, args []string) error {
	section, found := sess.elfFile.GetSection(dwarf.ElfDebugPubnamesSection)
	if !found {
		fmt.Println("no .debug_pubnames")
		return nil
	}

	content, err := section.RawContent()
	if err != nil {
		return err
	}

	cursor := dwarf.NewCursor(sess.elfFile.ByteOrder(), content)
	for !cursor.HasReachedEnd() {
		setOffset := cursor.Position

		length, dwarf64, err := cursor.InitialLength()
		if err != nil {
			return err
		}

		set, err := cursor.SubCursor(cursor.Position, cursor.Position+int(length))
		if err != nil {
			return err
		}
		err = cursor.Skip(int(length))
		if err != nil {
			return err
		}

		_, err = set.U16()
		if err != nil {
			return err
		}

		cuOffset, err := set.Offset(dwarf64)
		if err != nil {
			return err
		}

		_, err = set.Offset(dwarf64) // covered length
		if err != nil {
			return err
		}

		fmt.Printf("set 0x%x (CU 0x%x):\n", setOffset, cuOffset)
		for {
			dieOffset, err := set.Offset(dwarf64)
			if err != nil {
				return err
			}

			if dieOffset == 0 {
				break
			}

			name, err := set.String()
			if err != nil {
				return err
			}

			pretty := name
			val, err := demangle.ToString(name)
			if err == nil {
				pretty = val
			}

			fmt.Printf("  0x%x: %s\n", dieOffset, pretty)
		}
	}
	return nil
}

func lookupSymbol(sess *session, args []string) error {
	if len(args) != 1 {
		fmt.Println("usage: sym <name | 0xaddress>")
		return nil
	}

	address, addressErr := strconv.ParseUint(
		strings.TrimPrefix(args[0], "0x"),
		16,
		64)
	byAddress := addressErr == nil && strings.HasPrefix(args[0], "0x")

	for _, name := range []string{".symtab", ".dynsym"} {
		section, found := sess.elfFile.GetSection(name)
		if !found {
			continue
		}

		table, ok := section.(*elf.SymbolTableSection)
		if !ok {
			continue
		}

		var symbols []*elf.Symbol
		if byAddress {
			symbol := table.SymbolSpans(elf.FileAddress(address))
			if symbol != nil {
				symbols = append(symbols, symbol)
			}
		} else {
			symbols = table.SymbolsByName(args[0])
		}

		for _, symbol := range symbols {
			fmt.Printf(
				"%s: %s\t%s %s value = 0x%x size = %d\n",
				name,
				symbol.PrettyName(),
				symbol.Type(),
				symbol.Binding(),
				symbol.Value,
				symbol.Size)
		}
	}
	return nil
}

func runCheck(sess *session, args []string) error {
	reporter := dwarf.NewReporter(os.Stdout)
	reporter.WarningCriteria.Accept |= dwarf.CatStrings
	dwarf.CheckFile(sess.elfFile, dwarf.CheckOptions{}, reporter)

	if reporter.ErrorCount == 0 {
		fmt.Println("No errors")
	}
	return nil
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("USAGE: dwarf-shell <file>")
		os.Exit(1)
	}

	content, err := os.ReadFile(os.Args[1])
	if err != nil {
		panic(err)
	}

	elfFile, err := elf.ParseBytes(content)
	if err != nil {
		panic(err)
	}

	// Load the debug sections quietly.  The check command reruns the
	// checks with a printing reporter.
	file := dwarf.CheckFile(
		elfFile,
		dwarf.CheckOptions{TolerateNoDebug: true},
		dwarf.NewReporter(io.Discard))

	sess := &session{
		elfFile: elfFile,
		file:    file,
	}

	rl, err := readline.New("dwarf > ")
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			panic(err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		args := strings.Split(line, " ")
		if args[0] == "" {
			fmt.Println("invalid command: (empty string)")
		}

		found := false
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.name, args[0]) {
				found = true
				err := cmd.run(sess, args[1:])
				if err != nil {
					fmt.Println("error:", err)
				}
			}
		}

		if !found {
			fmt.Println("invalid command:", args[0])
		}
	}
}
