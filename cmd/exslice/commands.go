package main

import (
	"context"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/exslice/capture"
	"github.com/colorfulnotion/exslice/common"
	"github.com/colorfulnotion/exslice/glue"
	"github.com/colorfulnotion/exslice/inspect"
	"github.com/colorfulnotion/exslice/pipeline"
	"github.com/colorfulnotion/exslice/toolchain"
)

func addBuildFlags(cmd *cobra.Command, g *globalFlags) {
	cmd.Flags().StringVarP(&g.outputDir, "outputdir", "o", "", "Directory for every generated file")
	cmd.Flags().IntVar(&g.jobs, "jobs", 1, "Units compiled in parallel")
	cmd.Flags().IntVar(&g.traceJobs, "trace-jobs", 1, "Traces converted in parallel")
	cmd.Flags().BoolVar(&g.verify, "verify", false, "Check the artifact symbols after linking")
}

func printResults(results []*pipeline.Result) {
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Artifact == nil {
			fmt.Printf("%s %s stopped at %s: %v\n", common.Fail("x"), r.Trace, r.Stage, r.Err)
			continue
		}
		fmt.Printf("%s %s: %d sections, %d divergence sites %s\n",
			common.Ok("✓"), r.Artifact.Path, len(r.Plan.Sections), len(r.Sites), common.Dim(r.Elapsed.String()))
	}
}

func newRunCmd(ctx context.Context, g *globalFlags) *cobra.Command {
	var syscallIdx, byteRange, rangeFile string
	cmd := &cobra.Command{
		Use:   "run <rec_group_id> <checkpoint_clock>",
		Short: "Capture the slice of a recording group, compile it and resume at the checkpoint",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			filter, err := capture.NewTaintFilter(syscallIdx, byteRange, rangeFile)
			if err != nil {
				fail(err)
			}
			cfg := g.setup(cmd)

			runner := toolchain.ExecRunner{}
			c := capture.New(cfg, runner, capture.Request{
				Group:     args[0],
				Clock:     args[1],
				Filter:    filter,
				OutputDir: g.outputDir,
			})
			traces, err := c.Run(ctx)
			if err != nil {
				fail(err)
			}
			results, err := pipeline.NewConverter(cfg, runner, c.OutputDir()).RunGroup(ctx, traces)
			printResults(results)
			if err != nil {
				fail(err)
			}
			if err := c.Resume(ctx); err != nil {
				fail(err)
			}
		},
	}
	addBuildFlags(cmd, g)
	cmd.Flags().StringVar(&syscallIdx, "taint-syscall", "", "Only taint the syscall at this index")
	cmd.Flags().StringVar(&byteRange, "taint-byterange", "", "Taint one byte range: RECORD_PID,SYSCALL_INDEX,START,END")
	cmd.Flags().StringVar(&rangeFile, "taint-byterange-file", "", "File listing every range and syscall to taint")
	return cmd
}

func newCompileCmd(ctx context.Context, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <asm_file>...",
		Short: "Compile existing slice traces without capturing or resuming",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := g.setup(cmd)
			var traces []string
			for _, a := range args {
				dir := g.outputDir
				if dir == "" {
					dir = filepath.Dir(a)
				}
				staged, err := capture.Stage(a, dir)
				if err != nil {
					fail(err)
				}
				traces = append(traces, staged)
			}
			results, err := pipeline.NewConverter(cfg, toolchain.ExecRunner{}, g.outputDir).RunGroup(ctx, traces)
			printResults(results)
			if err != nil {
				fail(err)
			}
		},
	}
	addBuildFlags(cmd, g)
	return cmd
}

func newPlanCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <asm_file>",
		Short: "Show how a trace would be split and instrumented, without building it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := g.setup(cmd)
			res, err := pipeline.NewConverter(cfg, nil, "").Plan(args[0])
			if err != nil {
				fail(err)
			}
			fmt.Println(glue.ChainTree(args[0], res.Units).String())

			guards := make(map[int]int)
			for _, s := range res.Sites {
				guards[s.Section]++
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Section", "Source", "Lines", "Cost", "Guards", "First line"})
			for _, s := range res.Plan.Sections {
				first := "-"
				if len(s.Lines) > 0 {
					first = strconv.Itoa(s.Lines[0].Num)
				}
				table.Append([]string{
					s.Label(),
					pipeline.SourceName(res.PID, s.Ordinal),
					strconv.Itoa(len(s.Lines)),
					strconv.Itoa(s.Cost),
					strconv.Itoa(guards[s.Ordinal]),
					first,
				})
			}
			table.SetFooter([]string{"", "", "", strconv.Itoa(res.Plan.Cost()), strconv.Itoa(len(res.Sites)), ""})
			table.Render()
		},
	}
	return cmd
}

func newInspectCmd(g *globalFlags) *cobra.Command {
	var (
		symbol   string
		sections int
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "inspect <artifact.so>",
		Short: "List the chain symbols of an artifact and disassemble one of them",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := g.setup(cmd)
			syms, err := inspect.Symbols(args[0])
			if err != nil {
				fail(err)
			}

			var names []string
			for name := range syms.Defined {
				if strings.HasPrefix(name, "_section") || strings.Contains(name, "diverge") {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Symbol", "Address", "Binding"})
			for _, name := range names {
				s := syms.Defined[name]
				table.Append([]string{name, fmt.Sprintf("%#x", s.Value), elf.ST_BIND(s.Info).String()})
			}
			table.Render()
			for name := range syms.Undefined {
				if strings.Contains(name, "diverge") {
					fmt.Printf("%s %s is undefined\n", common.Fail("!"), name)
				}
			}

			if sections > 0 {
				jump := strings.TrimSpace(cfg.Markers.IndirectJump)
				index := strings.TrimSpace(cfg.Markers.IndexDispatch)
				if err := inspect.CheckArtifact(syms, sections, jump, index); err != nil {
					fail(err)
				}
				fmt.Printf("%s symbol contract holds for %d sections\n", common.Ok("✓"), sections)
			}

			if symbol != "" {
				lines, err := inspect.Disassemble(args[0], symbol, limit)
				if err != nil {
					fail(err)
				}
				fmt.Printf("%s:\n", symbol)
				for _, l := range lines {
					fmt.Println("  " + l)
				}
			}
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Symbol to disassemble, e.g. _section1")
	cmd.Flags().IntVar(&sections, "sections", 0, "Check the symbol contract for this many sections")
	cmd.Flags().IntVar(&limit, "max", 32, "Instructions to disassemble")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(common.BuildVersion())
		},
	}
}
