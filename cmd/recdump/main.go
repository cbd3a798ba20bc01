package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bsm/recstore"
	"github.com/tidwall/pretty"
)

func main() {
	indexOnly := flag.Bool("index", false, "dump index entries without values")
	prettify := flag.Bool("pretty", false, "pretty-print each entry")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *indexOnly, *prettify, *verbose); err != nil {
		log.Fatalln(err)
	}
}

func run(name string, indexOnly, prettify, verbose bool) error {
	store, err := recstore.Open(name, recstore.ModeRead, &recstore.Options{Verbose: verbose})
	if err != nil {
		return err
	}
	defer store.Close()

	buf := new(bytes.Buffer)
	if indexOnly {
		err = store.DumpIndex(buf)
	} else {
		err = store.Dump(buf)
	}
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	if !prettify {
		_, err = buf.WriteTo(out)
		return err
	}

	scanner := bufio.NewScanner(buf)
	scanner.Buffer(make([]byte, 64*1024), 1<<30)
	for scanner.Scan() {
		if _, err := out.Write(pretty.Pretty(scanner.Bytes())); err != nil {
			return err
		}
	}
	return scanner.Err()
}
