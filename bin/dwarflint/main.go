package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/dwarflint/dwarf"
	"github.com/pattyshack/dwarflint/elf"
)

type criteriaConfig struct {
	Accept []string `yaml:"accept"`
	Reject []string `yaml:"reject"`
}

type lintConfig struct {
	Warning *criteriaConfig `yaml:"warning"`
	Error   *criteriaConfig `yaml:"error"`
}

func parseCategories(names []string) (dwarf.Category, error) {
	result := dwarf.CatNone
	for _, name := range names {
		cat, ok := dwarf.ParseCategory(name)
		if !ok {
			return 0, fmt.Errorf("unknown message category: %s", name)
		}
		result |= cat
	}

	return result, nil
}

func (config *criteriaConfig) apply(criteria *dwarf.Criteria) error {
	if config == nil {
		return nil
	}

	if config.Accept != nil {
		accept, err := parseCategories(config.Accept)
		if err != nil {
			return err
		}
		criteria.Accept = accept
	}

	if config.Reject != nil {
		reject, err := parseCategories(config.Reject)
		if err != nil {
			return err
		}
		criteria.Reject = reject
	}

	return nil
}

func loadConfig(path string, reporter *dwarf.Reporter) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := lintConfig{}
	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	err = config.Warning.apply(&reporter.WarningCriteria)
	if err != nil {
		return err
	}

	return config.Error.apply(&reporter.ErrorCriteria)
}

func mapFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() == 0 {
		return nil, fmt.Errorf("empty file")
	}

	return unix.Mmap(
		int(file.Fd()),
		0,
		int(info.Size()),
		unix.PROT_READ,
		unix.MAP_PRIVATE)
}

func checkFile(
	path string,
	options dwarf.CheckOptions,
	reporter *dwarf.Reporter,
) {
	content, err := mapFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open input file: %s\n", err)
		return
	}
	defer unix.Munmap(content)

	elfFile, err := elf.ParseBytes(content)
	if err != nil {
		reporter.Errorf("", "cannot parse ELF file: %s", err)
		return
	}

	dwarf.CheckFile(elfFile, options, reporter)
}

func main() {
	strict := false
	gnu := false
	ignoreMissing := false
	quiet := false
	configPath := ""

	flag.BoolVar(
		&strict,
		"strict",
		false,
		"be extremely strict, flag string table bloat")
	flag.BoolVar(
		&gnu,
		"gnu",
		false,
		"binary was created with the GNU toolchain and is known to be "+
			"broken in certain ways")
	flag.BoolVar(
		&ignoreMissing,
		"i",
		false,
		"don't complain if files have no DWARF at all")
	flag.BoolVar(
		&ignoreMissing,
		"ignore-missing",
		false,
		"alias of -i")
	flag.BoolVar(
		&quiet,
		"q",
		false,
		"do not print anything if successful")
	flag.BoolVar(
		&quiet,
		"quiet",
		false,
		"alias of -q")
	flag.StringVar(
		&configPath,
		"config",
		"",
		"load warning/error criteria from a yaml file")

	flag.Parse()
	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Missing file name.")
		flag.Usage()
		os.Exit(1)
	}

	reporter := dwarf.NewReporter(os.Stdout)

	if strict {
		reporter.WarningCriteria.Accept |= dwarf.CatStrings
	}
	if gnu {
		reporter.WarningCriteria.Reject |= dwarf.CatBloat
	}
	if ignoreMissing {
		reporter.WarningCriteria.Reject |= dwarf.CatElf
	}

	if configPath != "" {
		err := loadConfig(configPath, reporter)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	options := dwarf.CheckOptions{
		TolerateNoDebug: ignoreMissing,
	}

	for _, path := range files {
		if len(files) > 1 {
			fmt.Fprintf(reporter.Out, "\n%s:\n", path)
		}

		prevErrorCount := reporter.ErrorCount
		checkFile(path, options, reporter)

		if reporter.ErrorCount == prevErrorCount && !quiet {
			fmt.Fprintln(reporter.Out, "No errors")
		}
	}

	if reporter.ErrorCount != 0 {
		os.Exit(1)
	}
}
