// Package cli implements persistqctl's subcommands: create, put, poll,
// peek, stat and drain, each operating on a single persistq queue file.
package cli

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/accurit/persistq"
	"github.com/accurit/persistq/codec"
)

// command is one persistqctl subcommand.
type command struct {
	name  string
	usage string
	short string
	exec  func(out, errOut io.Writer, args []string) int
}

func commands() []command {
	return []command{
		{"create", "create --file F --block-size N --file-size N", "create an empty queue file", runCreate},
		{"put", "put --file F <value>", "enqueue a string value; fails if the queue is full", runPut},
		{"poll", "poll --file F [--timeout D]", "dequeue and print the head value", runPoll},
		{"peek", "peek --file F", "print the head value without removing it", runPeek},
		{"stat", "stat --file F", "print size/capacity information", runStat},
		{"drain", "drain --file F", "dequeue and print every currently available value", runDrain},
	}
}

// Run is persistqctl's entry point. It returns a process exit code.
func Run(_ io.Reader, out, errOut io.Writer, args []string) int {
	if len(args) < 2 {
		printUsage(errOut)
		return 1
	}

	name := args[1]
	if name == "-h" || name == "--help" {
		printUsage(out)
		return 0
	}

	for _, c := range commands() {
		if c.name == name {
			return c.exec(out, errOut, args[2:])
		}
	}

	fmt.Fprintf(errOut, "persistqctl: unknown command %q\n", name)
	printUsage(errOut)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: persistqctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-42s %s\n", c.usage, c.short)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string, *int32, *int32) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	file := fs.String("file", "", "path to the queue file")
	blockSize := fs.Int32("block-size", 64, "block size in bytes")
	fileSize := fs.Int32("file-size", 1<<20, "total file size in bytes")
	return fs, file, blockSize, fileSize
}

func openQueue(file string, blockSize, fileSize int32) (*persistq.Queue[string], error) {
	if file == "" {
		return nil, fmt.Errorf("--file is required")
	}
	// An existing queue file records its file_size and block_size in the
	// first eight bytes of its header; those take precedence over the flags.
	if f, err := os.Open(file); err == nil {
		var hdr [8]byte
		_, readErr := io.ReadFull(f, hdr[:])
		_ = f.Close()
		if readErr == nil {
			fileSize = int32(binary.BigEndian.Uint32(hdr[0:4]))
			blockSize = int32(binary.BigEndian.Uint32(hdr[4:8]))
		}
	}
	return persistq.Open[string](file, blockSize, fileSize, codec.JSON[string]())
}

func runCreate(out, errOut io.Writer, args []string) int {
	fs, file, blockSize, fileSize := newFlagSet("create")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	q, err := openQueue(*file, *blockSize, *fileSize)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()
	fmt.Fprintf(out, "created %s (block_size=%d file_size=%d)\n", *file, *blockSize, *fileSize)
	return 0
}

func runPut(out, errOut io.Writer, args []string) int {
	fs, file, blockSize, fileSize := newFlagSet("put")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(errOut, "error: put takes exactly one value argument")
		return 1
	}
	q, err := openQueue(*file, *blockSize, *fileSize)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	ok, err := q.TryOffer(rest[0])
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(errOut, "error: queue is full")
		return 1
	}
	fmt.Fprintln(out, "ok")
	return 0
}

func runPoll(out, errOut io.Writer, args []string) int {
	fs, file, blockSize, fileSize := newFlagSet("poll")
	timeout := fs.Duration("timeout", 0, "how long to wait for an element")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	q, err := openQueue(*file, *blockSize, *fileSize)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	var v string
	var ok bool
	if *timeout > 0 {
		v, ok, err = q.PollTimeout(*timeout)
	} else {
		v, ok, err = q.TryPoll()
	}
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(errOut, "empty")
		return 1
	}
	fmt.Fprintln(out, v)
	return 0
}

func runPeek(out, errOut io.Writer, args []string) int {
	fs, file, blockSize, fileSize := newFlagSet("peek")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	q, err := openQueue(*file, *blockSize, *fileSize)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	v, ok, err := q.Peek()
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(errOut, "empty")
		return 1
	}
	fmt.Fprintln(out, v)
	return 0
}

func runStat(out, errOut io.Writer, args []string) int {
	fs, file, blockSize, fileSize := newFlagSet("stat")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	q, err := openQueue(*file, *blockSize, *fileSize)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	fmt.Fprintf(out, "size=%d empty=%s remaining_capacity=%s\n",
		q.Size(), strconv.FormatBool(q.IsEmpty()), strconv.FormatInt(int64(q.RemainingCapacity()), 10))
	return 0
}

func runDrain(out, errOut io.Writer, args []string) int {
	fs, file, blockSize, fileSize := newFlagSet("drain")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	q, err := openQueue(*file, *blockSize, *fileSize)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	var out2 []string
	n, err := q.DrainTo(&out2)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	for _, v := range out2 {
		fmt.Fprintln(out, v)
	}
	fmt.Fprintf(errOut, "drained %d\n", n)
	return 0
}
