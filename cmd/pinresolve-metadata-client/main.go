package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bayleafwalker/pinresolve/internal/metadata"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/resolver"
)

func main() {
	var target string
	var timeout time.Duration
	flag.StringVar(&target, "target", "127.0.0.1:50051", "gRPC server address")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pinresolve-metadata-client [flags] 'name==version' | 'name @ locator'\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	req, err := requirement.Parse(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if req.Locator == "" {
		if _, err := resolver.ExactVersion(req); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := metadata.Dial(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer conn.Close()

	q := metadata.QueryFor(req)
	deps, err := metadata.NewGRPCClient(conn).FetchDependencies(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FetchDependencies %s: %v\n", q.Key(), err)
		os.Exit(1)
	}
	if len(deps) > 0 {
		fmt.Println(strings.Join(deps, "\n"))
	}
}
