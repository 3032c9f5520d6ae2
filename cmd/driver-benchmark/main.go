// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// driver-benchmark runs the driver's codec benchmark suite and writes a
// perf-format JSON report.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/dirkit/ldap-go-driver/benchmark"
	"github.com/dirkit/ldap-go-driver/version"
)

func main() {
	err := mainReal()
	if err != nil {
		os.Stderr.Write([]byte(err.Error()))
		os.Exit(-1)
	}
}

func mainReal() error {
	flags := pflag.NewFlagSet("driver-benchmark", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "perf.json", "file to write the perf report to")
	showVersion := flags.Bool("version", false, "print the driver version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Println("driver-benchmark", version.Driver)
		return nil
	}

	return benchmark.RunAll(context.Background(), *output)
}
