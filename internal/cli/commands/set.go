package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"metabridge/internal/codec"
	"metabridge/internal/vfs"
)

var (
	setClass       string
	setValue       uint64
	setAdvanceOnly bool
	setShow        bool
)

var setCmd = &cobra.Command{
	Use:   "set <path>",
	Short: "Set one information class of a file",
	Long: `Open a file through the volume and apply one settable class.

--value is interpreted per class:
  basic        new file attributes (times are left unchanged)
  allocation   allocation size in bytes
  eof          end of file in bytes (--advance-only only grows it)
  disposition  non-zero marks the file for deletion on close
  position     current byte offset of the handle

Examples:
  metabridge set --root . build.log --class eof --value 0
  metabridge set --store meta.db docs/a.txt --class disposition --value 1`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

func init() {
	addSourceFlags(setCmd)
	setCmd.Flags().StringVar(&setClass, "class", "", "information class to set")
	setCmd.Flags().Uint64Var(&setValue, "value", 0, "class-specific value")
	setCmd.Flags().BoolVar(&setAdvanceOnly, "advance-only", false, "end of file may only grow")
	setCmd.Flags().BoolVar(&setShow, "show", true, "query the standard class afterwards")
	setCmd.MarkFlagRequired("class")
	rootCmd.AddCommand(setCmd)
}

// mutationFor maps a single CLI value onto the fields of class c.
func mutationFor(c codec.Class, value uint64, advanceOnly bool) codec.Mutation {
	m := codec.Mutation{Class: c}
	switch c {
	case codec.ClassBasic:
		m.FileAttributes = uint32(value)
	case codec.ClassAllocation:
		m.AllocationSize = value
	case codec.ClassEndOfFile:
		m.EndOfFile = value
		m.AdvanceOnly = advanceOnly
	case codec.ClassDisposition:
		m.DeleteFile = value != 0
	case codec.ClassPosition:
		m.CurrentByteOffset = value
	}
	return m
}

func runSet(cmd *cobra.Command, args []string) error {
	class, err := parseClass(setClass)
	if err != nil {
		return err
	}
	buf, err := codec.Lookup(class).Build(mutationFor(class, setValue, setAdvanceOnly))
	if err != nil {
		return fmt.Errorf("class %s cannot be set: %w", class, err)
	}

	s, err := openSession(settings, sourceRoot, sourceStore)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	h, closeFile, err := s.open(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFile()

	res := s.volume.SetInformation(ctx, vfs.SetCall{Handle: h, Class: class, Buffer: buf, AdvanceOnly: setAdvanceOnly})
	fmt.Printf("Class: %s (%d)\n", class, uint32(class))
	fmt.Printf("Status: %s\n", res.Status)
	if !res.Status.IsSuccess() {
		return res.Status
	}

	if setShow {
		out := make([]byte, 64)
		q := s.volume.QueryInformation(ctx, vfs.QueryCall{Handle: h, Class: codec.ClassStandard, Buffer: out})
		printResult(os.Stdout, codec.ClassStandard, out, q)
	}
	return nil
}
