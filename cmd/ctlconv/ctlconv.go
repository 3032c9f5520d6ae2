// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// ctlconv converts directory controls between their JSON and BER forms.
//
// By default it reads JSON control objects, one per line, and writes the
// BER encoding of each to stdout. With --decode it reads concatenated BER
// controls and writes one JSON control object per line, specialized through
// the registered control types where possible.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/pretty"

	"github.com/dirkit/ldap-go-driver/ber"
	"github.com/dirkit/ldap-go-driver/ldap"
	_ "github.com/dirkit/ldap-go-driver/ldap/controls"
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
	flags := pflag.NewFlagSet("ctlconv", pflag.ContinueOnError)
	decode := flags.BoolP("decode", "d", false, "convert BER controls to JSON instead of JSON to BER")
	strict := flags.BoolP("strict", "s", false, "reject JSON control objects with unrecognized fields")
	prettyOut := flags.BoolP("pretty", "p", false, "indent JSON output (only with --decode)")
	showVersion := flags.Bool("version", false, "print the driver version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Println("ctlconv", version.Driver)
		return nil
	}

	fileName := "-"
	if flags.NArg() > 0 {
		fileName = flags.Arg(0)
	}

	var file *os.File
	var err error

	if fileName == "-" {
		file = os.Stdin
	} else {
		file, err = os.Open(fileName)
		if err != nil {
			return fmt.Errorf("cannot open file (%s) because: %s", fileName, err)
		}
		defer file.Close()
	}

	if *decode {
		return decodeControls(file, os.Stdout, *prettyOut)
	}
	return encodeControls(file, os.Stdout, *strict)
}

// encodeControls reads JSON control objects line by line and writes their
// BER encodings.
func encodeControls(r io.Reader, w io.Writer, strict bool) error {
	lineNumber := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}

		ctrl, err := ldap.UnmarshalControlJSON([]byte(line), strict)
		if err != nil {
			return fmt.Errorf("error parsing line %d: %s", lineNumber, err)
		}
		by := ctrl.Envelope().Encode()

		n, err := w.Write(by)
		if n != len(by) {
			return fmt.Errorf("error writing control, only wrote %d of %d bytes", n, len(by))
		}
		if err != nil {
			return err
		}
	}

	return scanner.Err()
}

// decodeControls reads concatenated BER controls and writes one JSON
// control object per line. A control whose registered decoder rejects it is
// rendered in its generic form with a note on stderr.
func decodeControls(r io.Reader, w io.Writer, prettyOut bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	index := 0
	for len(data) > 0 {
		index++

		_, rest, err := ber.ReadElement(data)
		if err != nil {
			return fmt.Errorf("error reading control %d: %s", index, err)
		}
		env, err := ldap.DecodeEnvelope(data[:len(data)-len(rest)])
		if err != nil {
			return fmt.Errorf("error decoding control %d: %s", index, err)
		}
		data = rest

		ctrl, err := ldap.DecodeControl(env)
		if err != nil {
			fmt.Fprintf(os.Stderr, "control %d (OID %s): using generic form: %s\n", index, env.OID(), err)
			ctrl = env
		}

		out, err := ldap.MarshalControlJSON(ctrl)
		if err != nil {
			return fmt.Errorf("error rendering control %d: %s", index, err)
		}
		if prettyOut {
			out = pretty.Pretty(out)
		} else {
			out = append(out, '\n')
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}

	return nil
}
