// Command faststart rewrites an MP4/MOV file so the moov atom precedes
// mdat, or dumps the atom layout of a file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"

	"github.com/tetsuo/faststart"
)

// Format specifies the inspect output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// AtomNode is one atom in the printable tree.
type AtomNode struct {
	Type       string     `json:"type"`
	Offset     int64      `json:"offset"`
	Size       int64      `json:"size"`
	HeaderSize int        `json:"headerSize"`
	Children   []AtomNode `json:"children,omitempty"`
}

func main() {
	var (
		force        = flag.Bool("f", false, "overwrite the output file without asking")
		inspect      = flag.Bool("inspect", false, "print the atom layout of the input and exit")
		formatFlag   = flag.String("format", "text", "inspect output format: text (default), json")
		forceRewrite = flag.Bool("force-rewrite", false, "always rewrite fully, ignoring reusable padding")
		verbose      = flag.Bool("v", false, "enable debug logging")
		quiet        = flag.Bool("q", false, "log errors only")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input> <output>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -inspect [-format=text|json] <input>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	if *quiet {
		level = zerolog.ErrorLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	format := FormatText
	switch strings.ToLower(*formatFlag) {
	case "json":
		format = FormatJSON
	case "text":
		format = FormatText
	default:
		fmt.Fprintf(os.Stderr, "unknown format: %s\n", *formatFlag)
		os.Exit(1)
	}

	if *inspect {
		if flag.NArg() < 1 {
			flag.Usage()
			os.Exit(2)
		}
		if err := runInspect(flag.Arg(0), format); err != nil {
			logger.Error().Err(err).Msg("inspect failed")
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}
	src, dst := flag.Arg(0), flag.Arg(1)

	if !*force {
		if _, err := os.Stat(dst); err == nil {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("%s exists, overwrite", dst),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(os.Stderr, "aborted")
				os.Exit(1)
			}
		}
	}

	opts := []faststart.Option{faststart.WithLogger(logger)}
	if *forceRewrite {
		opts = append(opts, faststart.WithForceRewrite())
	}
	if _, err := faststart.Convert(src, dst, opts...); err != nil {
		logger.Error().Err(err).Msg("conversion failed")
		os.Exit(1)
	}
}

func runInspect(path string, format Format) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx, err := faststart.ReadIndex(f)
	if err != nil {
		return err
	}

	nodes := make([]AtomNode, 0, len(idx.Atoms))
	for _, a := range idx.Atoms {
		nodes = append(nodes, buildNode(a))
	}
	printTree(nodes, format)
	return nil
}

func buildNode(a *faststart.Atom) AtomNode {
	node := AtomNode{
		Type:       a.Type.String(),
		Offset:     a.Offset,
		Size:       a.Size,
		HeaderSize: a.HeaderSize,
	}
	for _, c := range a.Children {
		node.Children = append(node.Children, buildNode(c))
	}
	return node
}

// printTree prints the tree in the specified format
func printTree(nodes []AtomNode, format Format) {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(nodes); err != nil {
			fmt.Fprintf(os.Stderr, "error encoding JSON: %v\n", err)
		}
	case FormatText:
		for _, node := range nodes {
			printNodeText(node, 0)
		}
	}
}

// printNodeText prints a single node in text format
func printNodeText(node AtomNode, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s[%s] offset=%d size=%d\n", indent, node.Type, node.Offset, node.Size)
	for _, child := range node.Children {
		printNodeText(child, depth+1)
	}
}
