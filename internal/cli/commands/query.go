// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"metabridge/internal/codec"
	"metabridge/internal/status"
	"metabridge/internal/vfs"
)

var (
	sourceRoot  string
	sourceStore string
	queryClass  string
	querySize   int
	queryTwice  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <path>",
	Short: "Query one information class of a file",
	Long: `Open a file through the volume and query one information class into a
buffer of the given size. Prints the status, the bytes produced and the
decoded fields.

Examples:
  metabridge query --root . README.md --class basic
  metabridge query --store meta.db docs/a.txt --class all --size 64
  metabridge classes`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	addSourceFlags(queryCmd)
	queryCmd.Flags().StringVar(&queryClass, "class", "basic", "information class (see 'metabridge classes')")
	queryCmd.Flags().IntVar(&querySize, "size", 256, "caller buffer size in bytes")
	queryCmd.Flags().BoolVar(&queryTwice, "twice", false, "query twice to show the cached answer")
	rootCmd.AddCommand(queryCmd)
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sourceRoot, "root", "", "serve this directory")
	cmd.Flags().StringVar(&sourceStore, "store", "", "serve this metadata store (default: configured store_path)")
	cmd.MarkFlagsMutuallyExclusive("root", "store")
}

var classAliases = map[string]string{
	"alloc":  "allocation",
	"delete": "disposition",
	"attrs":  "basic",
}

func parseClass(name string) (codec.Class, error) {
	name = strings.ToLower(name)
	if full, ok := classAliases[name]; ok {
		name = full
	}
	c, ok := codec.ParseClass(name)
	if !ok {
		return 0, fmt.Errorf("unknown class %q", name)
	}
	return c, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	class, err := parseClass(queryClass)
	if err != nil {
		return err
	}
	if querySize < 0 {
		return fmt.Errorf("invalid buffer size %d", querySize)
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

	rounds := 1
	if queryTwice {
		rounds = 2
	}
	for i := 0; i < rounds; i++ {
		buf := make([]byte, querySize)
		res := s.volume.QueryInformation(ctx, vfs.QueryCall{Handle: h, Class: class, Buffer: buf})
		printResult(os.Stdout, class, buf, res)
		if !res.Status.IsSuccess() && res.Status != status.BufferOverflow {
			return res.Status
		}
	}
	return nil
}

func printResult(out io.Writer, class codec.Class, buf []byte, res vfs.Result) {
	fmt.Fprintf(out, "Class: %s (%d)\n", class, uint32(class))
	fmt.Fprintf(out, "Status: %s\n", res.Status)
	fmt.Fprintf(out, "Information: %d\n", res.Information)
	if res.Status == status.BufferOverflow {
		fmt.Fprintf(out, "Required: %d\n", res.Required)
	}
	if res.Information == 0 {
		return
	}
	fields, err := codec.Dump(class, buf[:res.Information])
	if err != nil {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "  %s\t%v\n", f.Name, f.Value)
	}
	w.Flush()
}
